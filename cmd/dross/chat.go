package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go-dross/internal/agents/pipeline"
	"go-dross/internal/console"
	"go-dross/pkg/logger"
)

var withHeartbeat bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to DROSS in the terminal",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&withHeartbeat, "heartbeat", false, "Keep working on the active goal while chatting")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The terminal belongs to the console, logs only go to the file.
	closer, err := logger.NewFile(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if withHeartbeat {
		go a.scheduler.Run(ctx, cfg.Agent.HeartbeatInterval, cfg.Agent.MaxBackoff)
	}
	return console.Run(ctx, func(ctx context.Context, input string) pipeline.Result {
		return a.pipeline.Run(ctx, input, "console")
	})
}
