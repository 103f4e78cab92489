package api

import (
	"sync"
	"time"
)

const (
	EventToolStart     = "tool_start"
	EventLog           = "log"
	EventResponse      = "response"
	EventStatus        = "status"
	EventRefreshStatus = "refresh_status"
)

// goalTools change what the status endpoint reports.
var goalTools = map[string]bool{
	"set_goal":         true,
	"complete_goal":    true,
	"add_subtask":      true,
	"complete_subtask": true,
	"set_plan":         true,
	"update_plan_step": true,
	"spawn_subagent":   true,
}

type Event struct {
	Type    string         `json:"type"`
	Time    time.Time      `json:"time"`
	Tool    string         `json:"tool,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Content string         `json:"content,omitempty"`
	Status  string         `json:"status,omitempty"`
}

// Activity keeps the most recent events and fans them out to subscribers.
// Slow subscribers miss events rather than block publishers.
type Activity struct {
	mu     sync.RWMutex
	events []Event
	limit  int
	subs   map[chan Event]struct{}
	now    func() time.Time
}

func NewActivity(limit int) *Activity {
	if limit <= 0 {
		limit = 200
	}
	return &Activity{
		events: make([]Event, 0, limit),
		limit:  limit,
		subs:   map[chan Event]struct{}{},
		now:    time.Now,
	}
}

// ToolStarted records a tool invocation. It has the signature of a registry
// callback.
func (a *Activity) ToolStarted(name string, args map[string]any) {
	a.Publish(Event{Type: EventToolStart, Tool: name, Args: args})
	if goalTools[name] {
		a.Publish(Event{Type: EventRefreshStatus})
	}
}

func (a *Activity) Log(content string) {
	a.Publish(Event{Type: EventLog, Content: content})
}

func (a *Activity) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = a.now()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.events) == a.limit {
		copy(a.events, a.events[1:])
		a.events = a.events[:a.limit-1]
	}
	a.events = append(a.events, e)
	for ch := range a.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Recent returns up to n events, oldest first. n <= 0 returns everything kept.
func (a *Activity) Recent(n int) []Event {
	a.mu.RLock()
	defer a.mu.RUnlock()
	events := a.events
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// Subscribe returns a channel receiving every later event and a function
// releasing it.
func (a *Activity) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	a.mu.Lock()
	a.subs[ch] = struct{}{}
	a.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, ch)
			a.mu.Unlock()
			close(ch)
		})
	}
}
