package fleet

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/tmc/langchaingo/embeddings"
	"go-dross/internal/agents/heartbeat"
	subagent "go-dross/internal/agents/subagent/actor"
	"go-dross/internal/llm"
	"go-dross/internal/memory"
	"go-dross/internal/namespace"
	"go-dross/internal/tools"
	"go-dross/pkg/models"
)

// WorkerConfig describes the environment shared by every subagent. Each
// subagent gets its own namespace under DataDir/subagents but works on the
// shared Workspace.
type WorkerConfig struct {
	DataDir   string
	Workspace string
	Registry  *tools.Registry
	Pool      *llm.Pool
	Embedder  embeddings.Embedder
	Memory    memory.Options
}

// NewWorkerFactory returns a Factory opening a namespace per subagent.
func NewWorkerFactory(cfg WorkerConfig) Factory {
	return func(id string) (subagent.Worker, error) {
		ns, err := namespace.Open(namespace.Config{
			Name:      "subagent-" + id,
			DataDir:   filepath.Join(cfg.DataDir, "subagents", id),
			Workspace: cfg.Workspace,
			Embedder:  cfg.Embedder,
			Memory:    cfg.Memory,
		})
		if err != nil {
			return nil, fmt.Errorf("open subagent namespace: %w", err)
		}
		return &worker{ns: ns, scheduler: heartbeat.New(ns, cfg.Registry, cfg.Pool)}, nil
	}
}

type worker struct {
	ns        *namespace.Namespace
	scheduler *heartbeat.Scheduler
}

func (w *worker) Start(ctx context.Context, goal string) error {
	if _, err := w.ns.State.SetGoal(ctx, goal, true); err != nil {
		return err
	}
	return w.ns.Journal.Write("Subagent started on goal: " + goal)
}

func (w *worker) Tick(ctx context.Context) (string, error) {
	return w.scheduler.Tick(ctx)
}

func (w *worker) Done(ctx context.Context) (bool, string, error) {
	goal, found, err := w.ns.State.CurrentGoal(ctx)
	if err != nil {
		return false, "", err
	}
	if !found || goal.Status != models.GoalCompleted {
		return false, "", nil
	}
	result := ""
	if goal.Result != nil {
		result = *goal.Result
	}
	return true, result, nil
}

func (w *worker) Close() error {
	return w.ns.Close()
}
