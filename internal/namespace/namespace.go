// Package namespace bundles the isolated state of one agent: its data
// directory, goal/plan store, memory and journal, behind a single-writer lock.
package namespace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"go-dross/internal/memory"
	"go-dross/internal/state"
	"go-dross/internal/tools"
	"go-dross/pkg/logger"
	"go-dross/pkg/prompts"
	"go-dross/pkg/template"
)

const (
	stateFile   = "state.db"
	memoryFile  = "memory.db"
	journalFile = "journal.jsonl"

	snapshotFiles = 20
)

type Config struct {
	Name      string
	DataDir   string
	Workspace string
	Embedder  embeddings.Embedder
	Memory    memory.Options
}

type Namespace struct {
	name      string
	dir       string
	workspace string
	mu        sync.Mutex
	now       func() time.Time
	l         zerolog.Logger

	State   *state.Store
	Memory  *memory.System
	Journal *state.Journal
}

func Open(cfg Config) (*Namespace, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("open namespace: empty name")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create namespace directory: %w", err)
	}
	workspace := cfg.Workspace
	if workspace == "" {
		workspace = cfg.DataDir
	}
	embedder := cfg.Embedder
	if embedder == nil {
		embedder = memory.NewHashEmbedder(0)
	}

	st, err := state.New(filepath.Join(cfg.DataDir, stateFile))
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	vs, err := memory.NewSQLiteStore(filepath.Join(cfg.DataDir, memoryFile), embedder)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open memory: %w", err)
	}
	journal, err := state.NewJournal(filepath.Join(cfg.DataDir, journalFile))
	if err != nil {
		st.Close()
		vs.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return &Namespace{
		name:      cfg.Name,
		dir:       cfg.DataDir,
		workspace: workspace,
		now:       time.Now,
		l:         log.With().Str(logger.NamespaceField, cfg.Name).Logger(),
		State:     st,
		Memory:    memory.New(vs, cfg.Memory),
		Journal:   journal,
	}, nil
}

func (n *Namespace) Name() string {
	return n.name
}

func (n *Namespace) Dir() string {
	return n.dir
}

func (n *Namespace) Workspace() string {
	return n.workspace
}

// Lock serializes the foreground pipeline against the heartbeat.
func (n *Namespace) Lock() {
	n.mu.Lock()
}

func (n *Namespace) Unlock() {
	n.mu.Unlock()
}

// Env is the tool environment of this namespace at the current time.
func (n *Namespace) Env() *tools.Env {
	return &tools.Env{
		Namespace: n.name,
		DataDir:   n.dir,
		Now:       n.now(),
		State:     n.State,
		Journal:   n.Journal,
	}
}

// Snapshot describes the local environment for prompts.
func (n *Namespace) Snapshot() string {
	cwd, _ := filepath.Abs(n.workspace)
	files := "unavailable"
	if entries, err := os.ReadDir(n.workspace); err == nil {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
		if len(names) > snapshotFiles {
			names = names[:snapshotFiles]
		}
		files = strings.Join(names, ", ")
	}

	out, err := template.Parse(prompts.Environment, struct {
		OS, Cwd, Time, Files string
	}{
		OS:    runtime.GOOS,
		Cwd:   cwd,
		Time:  n.now().Format("2006-01-02 15:04:05"),
		Files: files,
	})
	if err != nil {
		n.l.Warn().Err(err).Msg("unable to render environment snapshot")
		return ""
	}
	return out
}

// Reset wipes memory, goal, plan and goal stack. The journal is kept.
func (n *Namespace) Reset(ctx context.Context) error {
	n.Lock()
	defer n.Unlock()

	if err := n.Memory.Wipe(ctx); err != nil {
		return fmt.Errorf("reset memory: %w", err)
	}
	if err := n.State.Reset(ctx); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	n.l.Info().Msg("namespace reset")
	return nil
}

func (n *Namespace) Close() error {
	err := n.Memory.Close()
	if serr := n.State.Close(); err == nil {
		err = serr
	}
	return err
}
