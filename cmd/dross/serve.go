package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go-dross/internal/api"
	"go-dross/internal/tools"
	"go-dross/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, heartbeat and Telegram bridge",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closer, err := logger.NewGlobal(cfg.Log.Level, cfg.Log.Pretty, cfg.Log.File)
	if err != nil {
		return err
	}
	defer closer.Close()

	activity := api.NewActivity(0)
	a, err := newApp(cfg, tools.WithCallback(activity.ToolStarted))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Error().Err(err).Msg("shutdown incomplete")
		}
	}()

	srv := api.New(cfg.API.Addr, api.Deps{
		Namespace: a.ns,
		Pipeline:  a.pipeline,
		Registry:  a.registry,
		Pool:      a.pool,
		Fleet:     a.fleet,
		Activity:  activity,
	})
	a.converse = func(ctx context.Context, text string) string {
		return srv.Converse(ctx, text, "telegram").Reply
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		return ignoreCanceled(a.scheduler.Run(ctx, cfg.Agent.HeartbeatInterval, cfg.Agent.MaxBackoff))
	})
	g.Go(func() error {
		if err := a.plugins.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("plugin hot reload disabled")
		}
		return nil
	})
	if a.bridge != nil {
		g.Go(func() error {
			return ignoreCanceled(a.bridge.Run(ctx))
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down gracefully")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Stop(sctx)
	})

	err = g.Wait()
	log.Info().Msg("server exiting")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
