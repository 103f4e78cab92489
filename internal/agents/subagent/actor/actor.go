package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go-dross/pkg/logger"
	"go-dross/pkg/messages"
	"go-dross/pkg/models"
)

const MaxStepsReached = "Subagent reached maximum steps."

// Worker runs the heartbeat loop of one isolated namespace.
type Worker interface {
	// Start installs goal as the autonomous goal of the namespace.
	Start(ctx context.Context, goal string) error
	Tick(ctx context.Context) (string, error)
	// Done reports whether the goal has completed, with its result.
	Done(ctx context.Context) (bool, string, error)
	Close() error
}

type Subagent struct {
	id       string
	goal     string
	worker   Worker
	maxSteps int
	pause    time.Duration
	steps    int
	done     bool
	ctx      context.Context
	cancel   context.CancelFunc
	l        zerolog.Logger
}

// New returns a producer for a subagent that ticks worker until its goal
// completes or maxSteps ticks have run, pausing between ticks.
func New(id, goal string, worker Worker, maxSteps int, pause time.Duration) actor.Producer {
	return func() actor.Actor {
		ctx, cancel := context.WithCancel(context.Background())
		return &Subagent{
			id:       id,
			goal:     goal,
			worker:   worker,
			maxSteps: maxSteps,
			pause:    pause,
			ctx:      ctx,
			cancel:   cancel,
		}
	}
}

func (agent *Subagent) Receive(ac actor.Context) {
	agent.l = log.With().Fields(map[string]interface{}{logger.ActorIDField: ac.Self().GetId(), logger.SubagentIDField: agent.id}).Logger()
	switch ac.Message().(type) {
	case *actor.Started:
		agent.l.Info().Str("goal", agent.goal).Msg("subagent started")
		if err := agent.safely(func() error { return agent.worker.Start(agent.ctx, agent.goal) }); err != nil {
			agent.finish(ac, models.Failed, err.Error())
			return
		}
		ac.Send(ac.Self(), messages.Tick{})
	case *actor.Stopping:
		agent.l.Debug().Msg("stopping actor")
		agent.cancel()
		if err := agent.worker.Close(); err != nil {
			agent.l.Warn().Err(err).Msg("unable to close worker")
		}
	case *actor.Stopped:
		agent.l.Debug().Msg("stopped actor")
	case *actor.Restarting:
		agent.l.Debug().Msg("restarting actor")
	case messages.Tick:
		agent.tick(ac)
	default:
		agent.l.Warn().Msgf("unknown message: %v", ac.Message())
	}
}

func (agent *Subagent) tick(ac actor.Context) {
	if agent.done {
		return
	}

	err := agent.safely(func() error {
		out, err := agent.worker.Tick(agent.ctx)
		if err == nil {
			agent.l.Debug().Str("result", out).Msg("tick")
		}
		return err
	})
	agent.steps++
	if err != nil {
		agent.finish(ac, models.Failed, err.Error())
		return
	}
	agent.report(ac, messages.SubagentProgress{ID: agent.id, StepsTaken: agent.steps})

	var (
		completed bool
		result    string
	)
	err = agent.safely(func() error {
		var err error
		completed, result, err = agent.worker.Done(agent.ctx)
		return err
	})
	switch {
	case err != nil:
		agent.finish(ac, models.Failed, err.Error())
	case completed:
		agent.finish(ac, models.Completed, result)
	case agent.steps >= agent.maxSteps:
		agent.finish(ac, models.Finished, MaxStepsReached)
	default:
		system, self := ac.ActorSystem(), ac.Self()
		time.AfterFunc(agent.pause, func() {
			system.Root.Send(self, messages.Tick{})
		})
	}
}

func (agent *Subagent) finish(ac actor.Context, status models.State, result string) {
	agent.done = true
	agent.l.Info().Str("status", string(status)).Int("steps", agent.steps).Msg("subagent ended")
	agent.report(ac, messages.SubagentDone{ID: agent.id, Status: status, Result: result, StepsTaken: agent.steps})
	ac.Stop(ac.Self())
}

func (agent *Subagent) report(ac actor.Context, msg interface{}) {
	if ac.Parent() == nil {
		return
	}
	ac.Request(ac.Parent(), msg)
}

// safely runs fn, turning a panic into an error.
func (agent *Subagent) safely(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("subagent panic: %v", rec)
		}
	}()
	return fn()
}
