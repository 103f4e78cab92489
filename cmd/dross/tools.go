package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the schemas of every registered tool",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		registry, plugins, err := newRegistry(cfg)
		if err != nil {
			return err
		}
		loadPlugins(plugins)
		fmt.Fprintln(cmd.OutOrStdout(), registry.SchemasJSON())
		return nil
	},
}
