package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go-dross/pkg/logger"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe memory, goal and plan of the main namespace",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		closer, err := logger.NewGlobal(cfg.Log.Level, cfg.Log.Pretty, cfg.Log.File)
		if err != nil {
			return err
		}
		defer closer.Close()

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.ns.Reset(context.Background()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "namespace reset")
		return nil
	},
}
