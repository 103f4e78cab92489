package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog/log"
	"go-dross/internal/agents/heartbeat"
	"go-dross/internal/agents/pipeline"
	"go-dross/internal/config"
	"go-dross/internal/fleet"
	"go-dross/internal/llm"
	"go-dross/internal/namespace"
	"go-dross/internal/telegram"
	"go-dross/internal/tools"
)

const mainNamespace = "main"

// app holds the components shared by every command.
type app struct {
	cfg       *config.Config
	ns        *namespace.Namespace
	pool      *llm.Pool
	registry  *tools.Registry
	plugins   *tools.Plugins
	pipeline  *pipeline.Pipeline
	scheduler *heartbeat.Scheduler
	fleet     *fleet.Manager
	bridge    *telegram.Bridge

	// converse answers a Telegram message. serve replaces it so replies also
	// reach the activity feed.
	converse func(ctx context.Context, text string) string
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newApp(cfg *config.Config, opts ...tools.Option) (*app, error) {
	pool, err := llm.New(llm.Options{
		Hosts:   cfg.Ollama.Hosts,
		NumCtx:  cfg.Ollama.NumCtx,
		Timeout: cfg.Ollama.Timeout,
		Models: map[llm.Role]string{
			llm.Reasoning: cfg.Ollama.ReasoningModel,
			llm.Tool:      cfg.Ollama.ToolModel,
			llm.General:   cfg.Ollama.GeneralModel,
		},
		EmbeddingModel: cfg.Ollama.EmbeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("inference pool: %w", err)
	}

	ns, err := namespace.Open(namespace.Config{
		Name:      mainNamespace,
		DataDir:   cfg.DataDir,
		Workspace: cfg.Workspace,
		Embedder:  pool.Embedder(),
		Memory:    cfg.Memory.Options(),
	})
	if err != nil {
		return nil, err
	}

	registry, plugins, err := newRegistry(cfg, opts...)
	if err != nil {
		ns.Close()
		return nil, err
	}

	fm := fleet.New(actor.NewActorSystem().Root, fleet.NewWorkerFactory(fleet.WorkerConfig{
		DataDir:   cfg.DataDir,
		Workspace: cfg.Workspace,
		Registry:  registry,
		Pool:      pool,
		Embedder:  pool.Embedder(),
		Memory:    cfg.Memory.Options(),
	}), fleet.Options{MaxSteps: cfg.Fleet.MaxSteps, Pause: cfg.Fleet.Pause})
	tools.RegisterFleet(registry, fm)

	a := &app{
		cfg:       cfg,
		ns:        ns,
		pool:      pool,
		registry:  registry,
		plugins:   plugins,
		pipeline:  pipeline.New(ns, registry, pool, pipeline.Options{AutoLearnMinLength: cfg.Agent.AutoLearnMinLength}),
		scheduler: heartbeat.New(ns, registry, pool),
		fleet:     fm,
	}
	a.converse = func(ctx context.Context, text string) string {
		return a.pipeline.Run(ctx, text, "telegram").Reply
	}

	var notifier tools.Notifier = disabledNotifier{}
	if cfg.Telegram.Enabled() {
		a.bridge, err = telegram.New(telegram.Options{
			Token:       cfg.Telegram.Token,
			ChatID:      cfg.Telegram.ChatID,
			PollTimeout: cfg.Telegram.PollTimeout,
			MaxBackoff:  cfg.Telegram.MaxBackoff,
		}, func(ctx context.Context, text string) string {
			return a.converse(ctx, text)
		})
		if err != nil {
			a.close()
			return nil, err
		}
		notifier = a.bridge
	} else {
		log.Info().Msg("telegram credentials missing, bridge disabled")
	}
	tools.RegisterNotifier(registry, notifier)
	loadPlugins(plugins)
	return a, nil
}

// newRegistry registers the built-in tools. Messaging and fleet tools are added
// once those components exist.
func newRegistry(cfg *config.Config, opts ...tools.Option) (*tools.Registry, *tools.Plugins, error) {
	r := tools.NewRegistry(opts...)
	sb, err := tools.NewSandbox(cfg.Workspace)
	if err != nil {
		return nil, nil, err
	}
	tools.RegisterFiles(r, sb)
	tools.RegisterShell(r, sb, cfg.Tools.ShellTimeout, cfg.Tools.CodeTimeout)
	tools.RegisterSystem(r, cfg.Log.File)
	tools.RegisterGoals(r)
	tools.RegisterJournal(r)
	tools.RegisterWeb(r, tools.WebOptions{Timeout: cfg.Tools.HTTPTimeout})

	plugins, err := tools.NewPlugins(cfg.Tools.PluginDir, cfg.Tools.CodeTimeout, r)
	if err != nil {
		return nil, nil, err
	}
	tools.RegisterPlugins(r, plugins)
	return r, plugins, nil
}

// loadPlugins runs once every built-in tool is registered, so no plugin can
// claim a built-in name.
func loadPlugins(plugins *tools.Plugins) {
	n, err := plugins.LoadAll()
	if err != nil {
		log.Warn().Err(err).Msg("some plugins failed to load")
	}
	log.Info().Int("plugins", n).Msg("tools registered")
}

// disabledNotifier stands in for the Telegram bridge when it has no
// credentials.
type disabledNotifier struct{}

func (disabledNotifier) Notify(context.Context, string) error {
	return telegram.ErrNotConfigured
}

func (a *app) close() error {
	a.pipeline.Wait()
	err := a.fleet.Stop()
	if cerr := a.ns.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}
