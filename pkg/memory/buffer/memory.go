package buffer

import (
	"fmt"
	"strings"
	"sync"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Memory struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Memories is the short-term turn buffer of one namespace.
type Memories struct {
	mu    sync.Mutex
	items []Memory
}

func New() *Memories {
	return &Memories{items: make([]Memory, 0)}
}

func (m *Memories) Add(m2 Memory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, m2)
}

// Items returns a copy of the buffered turns, oldest first.
func (m *Memories) Items() []Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Memory, len(m.items))
	copy(out, m.items)
	return out
}

func (m *Memories) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Memories) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make([]Memory, 0)
}

// Prune removes the oldest chunk entries once the buffer holds more than limit and
// returns them as a labeled transcript. It reports false and leaves the buffer
// untouched when there is nothing to prune.
func (m *Memories) Prune(limit, chunk int) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) <= limit || chunk <= 0 {
		return "", false
	}
	if chunk > len(m.items) {
		chunk = len(m.items)
	}

	pruned := m.items[:chunk]
	m.items = append(make([]Memory, 0, len(m.items)-chunk), m.items[chunk:]...)

	var b strings.Builder
	for _, item := range pruned {
		b.WriteString(Label(item))
		b.WriteString(": ")
		b.WriteString(item.Content)
		b.WriteString("\n")
	}
	return b.String(), true
}

// Label renders the role tag of an entry, with its source when known.
func Label(item Memory) string {
	label := "[Assistant]"
	if item.Role == RoleUser {
		label = "[User]"
	}
	if item.Source != "" && item.Source != "unknown" {
		label = fmt.Sprintf("%s (%s)", label, item.Source)
	}
	return label
}
