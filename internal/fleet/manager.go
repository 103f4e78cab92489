// Package fleet runs subagents as supervised actors, each pursuing one goal in
// its own namespace, and keeps a record of every subagent it started.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog/log"
	"go-dross/pkg/messages"
	"go-dross/pkg/models"
)

var ErrUnexpectedReply = errors.New("unexpected reply from fleet")

type Options struct {
	MaxSteps int
	Pause    time.Duration
	// Timeout bounds every request made to the fleet actor.
	Timeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxSteps: 20,
		Pause:    2 * time.Second,
		Timeout:  time.Minute,
	}
}

type Manager struct {
	root    *actor.RootContext
	pid     *actor.PID
	timeout time.Duration
}

func New(root *actor.RootContext, factory Factory, opts Options) *Manager {
	def := DefaultOptions()
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = def.MaxSteps
	}
	if opts.Pause <= 0 {
		opts.Pause = def.Pause
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}

	decider := func(reason interface{}) actor.Directive {
		log.Error().Msgf("handling failure for subagent. reason: %v", reason)
		return actor.StopDirective
	}
	strategy := actor.NewOneForOneStrategy(3, 10000, decider)

	props := actor.PropsFromProducer(newFleet(factory, opts), actor.WithSupervisor(strategy))
	return &Manager{
		root:    root,
		pid:     root.Spawn(props),
		timeout: opts.Timeout,
	}
}

func (m *Manager) Spawn(_ context.Context, goal string) (string, error) {
	res, err := m.request(messages.SpawnSubagent{Goal: goal})
	if err != nil {
		return "", err
	}
	spawned, ok := res.(messages.SubagentSpawned)
	if !ok {
		return "", ErrUnexpectedReply
	}
	if spawned.Err != nil {
		return "", fmt.Errorf("spawn subagent: %w", spawned.Err)
	}
	return spawned.ID, nil
}

func (m *Manager) Status(_ context.Context, id string) (models.SubagentRecord, bool, error) {
	res, err := m.request(messages.GetSubagent{ID: id})
	if err != nil {
		return models.SubagentRecord{}, false, err
	}
	status, ok := res.(messages.SubagentStatus)
	if !ok {
		return models.SubagentRecord{}, false, ErrUnexpectedReply
	}
	return status.Record, status.Found, nil
}

func (m *Manager) List(_ context.Context) ([]models.SubagentRecord, error) {
	res, err := m.request(messages.ListSubagents{})
	if err != nil {
		return nil, err
	}
	list, ok := res.(messages.SubagentList)
	if !ok {
		return nil, ErrUnexpectedReply
	}
	return list.Records, nil
}

// Stop stops the fleet and every running subagent.
func (m *Manager) Stop() error {
	if err := m.root.PoisonFuture(m.pid).Wait(); err != nil {
		return fmt.Errorf("stop fleet: %w", err)
	}
	return nil
}

func (m *Manager) request(msg interface{}) (interface{}, error) {
	future := m.root.RequestFuture(m.pid, msg, m.timeout) // blocking
	res, err := future.Result()
	if err != nil {
		return nil, fmt.Errorf("fleet request: %w", err)
	}
	return res, nil
}
