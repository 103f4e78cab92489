// Package memory holds the long-term and short-term memory of one namespace.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go-dross/pkg/memory/buffer"
)

const (
	TypeAutoLearned      = "auto_learned"
	TypeAtomicFact       = "atomic_fact"
	TypeEpisodic         = "episodic"
	TypeFeedbackLearning = "feedback_learning"
	TypeSelfImprovement  = "self_improvement"
)

// ErrWiped is returned by writes through a Fence taken before the last Wipe.
var ErrWiped = errors.New("memory wiped since the write was prepared")

type Options struct {
	ShortTermLimit  int
	PruneChunk      int
	DedupDistance   float64
	RelevanceCutoff float64
	RetrieveK       int
}

func DefaultOptions() Options {
	return Options{
		ShortTermLimit:  15,
		PruneChunk:      5,
		DedupDistance:   0.15,
		RelevanceCutoff: 1.0,
		RetrieveK:       3,
	}
}

type System struct {
	// writes serializes the dedup check with the write that follows it, and
	// every write with Wipe
	writes     sync.Mutex
	generation uint64
	store      VectorStore
	short  *buffer.Memories
	opts   Options
	now    func() time.Time
}

func New(store VectorStore, opts Options) *System {
	return &System{
		store: store,
		short: buffer.New(),
		opts:  opts,
		now:   time.Now,
	}
}

func (s *System) Close() error {
	return s.store.Close()
}

// Save writes content to long-term memory and returns its id. With dedupe set, a
// near-identical existing record is returned instead of writing a new one.
func (s *System) Save(ctx context.Context, content string, metadata map[string]string, dedupe bool) (string, error) {
	s.writes.Lock()
	defer s.writes.Unlock()
	return s.save(ctx, content, metadata, dedupe)
}

func (s *System) save(ctx context.Context, content string, metadata map[string]string, dedupe bool) (string, error) {
	if dedupe {
		matches, err := s.store.Query(ctx, content, 1)
		if err != nil {
			return "", fmt.Errorf("dedup query: %w", err)
		}
		if len(matches) > 0 && matches[0].Distance < s.opts.DedupDistance {
			log.Debug().Str("id", matches[0].ID).Msg("skipping duplicate memory")
			return matches[0].ID, nil
		}
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	if _, ok := meta["timestamp"]; !ok {
		meta["timestamp"] = s.now().UTC().Format(time.RFC3339)
	}

	id := uuid.NewString()
	if err := s.store.Add(ctx, Document{ID: id, Content: content, Metadata: meta}); err != nil {
		return "", fmt.Errorf("save memory: %w", err)
	}
	return id, nil
}

// Retrieve formats the memories relevant to query, most relevant first. It never
// fails: lookup errors yield an empty string.
func (s *System) Retrieve(ctx context.Context, query string) string {
	if strings.TrimSpace(query) == "" {
		return ""
	}
	matches, err := s.store.Query(ctx, query, s.opts.RetrieveK)
	if err != nil {
		log.Warn().Err(err).Msg("memory retrieval failed")
		return ""
	}

	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Distance >= s.opts.RelevanceCutoff {
			continue
		}
		lines = append(lines, formatRecord(m.Document))
	}
	return strings.Join(lines, "\n")
}

func formatRecord(d Document) string {
	typ := d.Metadata["type"]
	if typ == "" {
		typ = "memory"
	}
	if ts, err := time.Parse(time.RFC3339, d.Metadata["timestamp"]); err == nil {
		return fmt.Sprintf("[%s, %s] %s", typ, ts.Format("2006-01-02"), d.Content)
	}
	return fmt.Sprintf("[%s] %s", typ, d.Content)
}

// SaveRelationship records a directed edge. Failures are logged and swallowed.
func (s *System) SaveRelationship(ctx context.Context, sourceID, targetID, typ string) {
	s.writes.Lock()
	defer s.writes.Unlock()
	s.saveRelationship(ctx, sourceID, targetID, typ)
}

func (s *System) saveRelationship(ctx context.Context, sourceID, targetID, typ string) {
	if typ == "" {
		typ = "references"
	}
	if err := s.store.AddEdge(ctx, Edge{SourceID: sourceID, TargetID: targetID, Type: typ}); err != nil {
		log.Warn().Err(err).Str("source", sourceID).Str("target", targetID).Msg("unable to save relationship")
	}
}

// Wipe drops all long-term records, edges and the short-term buffer.
// Writes still pending through an older Fence are dropped.
func (s *System) Wipe(ctx context.Context) error {
	s.writes.Lock()
	defer s.writes.Unlock()
	s.generation++
	s.short.Clear()
	if _, err := s.store.Delete(ctx, Filter{All: true}); err != nil {
		return fmt.Errorf("wipe: %w", err)
	}
	return nil
}

// Fence binds later writes to the current memory contents. Background work
// takes a fence while it still holds the namespace lock, so a reset that comes
// in between discards its results.
func (s *System) Fence() Fence {
	s.writes.Lock()
	defer s.writes.Unlock()
	return Fence{s: s, generation: s.generation}
}

type Fence struct {
	s          *System
	generation uint64
}

func (f Fence) Save(ctx context.Context, content string, metadata map[string]string, dedupe bool) (string, error) {
	f.s.writes.Lock()
	defer f.s.writes.Unlock()
	if f.s.generation != f.generation {
		return "", ErrWiped
	}
	return f.s.save(ctx, content, metadata, dedupe)
}

func (f Fence) SaveRelationship(ctx context.Context, sourceID, targetID, typ string) {
	f.s.writes.Lock()
	defer f.s.writes.Unlock()
	if f.s.generation != f.generation {
		log.Debug().Str("source", sourceID).Str("target", targetID).Msg("memory wiped, dropping relationship")
		return
	}
	f.s.saveRelationship(ctx, sourceID, targetID, typ)
}

func (s *System) DeleteContaining(ctx context.Context, substr string) (int, error) {
	if substr == "" {
		return 0, nil
	}
	return s.store.Delete(ctx, Filter{Contains: substr})
}

func (s *System) All(ctx context.Context) ([]Document, error) {
	return s.store.Get(ctx)
}

type Graph struct {
	Nodes []Document `json:"nodes"`
	Edges []Edge     `json:"edges"`
}

func (s *System) Graph(ctx context.Context) (Graph, error) {
	docs, err := s.store.Get(ctx)
	if err != nil {
		return Graph{}, err
	}
	edges, err := s.store.Edges(ctx)
	if err != nil {
		return Graph{}, err
	}
	return Graph{Nodes: docs, Edges: edges}, nil
}

func (s *System) AddShortTerm(role, content, source string) {
	s.short.Add(buffer.Memory{Role: role, Content: content, Source: source})
}

func (s *System) ShortTerm() []buffer.Memory {
	return s.short.Items()
}

// PruneShortTerm removes the oldest turns once the buffer is over its limit and
// returns them as a transcript.
func (s *System) PruneShortTerm() (string, bool) {
	return s.short.Prune(s.opts.ShortTermLimit, s.opts.PruneChunk)
}
