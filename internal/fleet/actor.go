package fleet

import (
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	subagent "go-dross/internal/agents/subagent/actor"
	"go-dross/pkg/logger"
	"go-dross/pkg/messages"
	"go-dross/pkg/models"
)

// Factory opens the isolated environment a subagent works in.
type Factory func(id string) (subagent.Worker, error)

type childGone struct {
	id string
}

type fleet struct {
	factory  Factory
	maxSteps int
	pause    time.Duration
	now      func() time.Time
	records  map[string]*models.SubagentRecord
	order    []string
	pids     map[string]*actor.PID
}

func newFleet(factory Factory, opts Options) actor.Producer {
	return func() actor.Actor {
		return &fleet{
			factory:  factory,
			maxSteps: opts.MaxSteps,
			pause:    opts.Pause,
			now:      time.Now,
			records:  map[string]*models.SubagentRecord{},
			pids:     map[string]*actor.PID{},
		}
	}
}

func (f *fleet) Receive(ac actor.Context) {
	l := log.With().Fields(map[string]interface{}{logger.ActorIDField: ac.Self().GetId(), logger.AgentNameField: "fleet"}).Logger()
	switch msg := ac.Message().(type) {
	case *actor.Started:
		l.Debug().Msg("starting actor")
	case *actor.Stopping:
		l.Debug().Msg("stopping actor")
	case *actor.Stopped:
		l.Debug().Msg("stopped actor and its children")
	case *actor.Restarting:
		l.Debug().Msg("restarting actor")
	case *actor.Terminated:
		// reports sent before the child stopped are still queued behind this
		// system message
		if id, ok := f.child(msg.Who); ok {
			ac.Send(ac.Self(), childGone{id: id})
		}
	case childGone:
		delete(f.pids, msg.id)
		if rec := f.records[msg.id]; rec.Status == models.Running {
			l.Warn().Str(logger.SubagentIDField, msg.id).Msg("subagent stopped before reporting")
			f.end(rec, models.Failed, "Subagent stopped unexpectedly.")
		}
	case messages.SpawnSubagent:
		id := uuid.NewString()[:8]
		worker, err := f.factory(id)
		if err != nil {
			l.Error().Err(err).Msg("unable to prepare subagent")
			ac.Respond(messages.SubagentSpawned{Err: err})
			return
		}

		f.records[id] = &models.SubagentRecord{
			ID:        id,
			Goal:      msg.Goal,
			Status:    models.Running,
			StartTime: f.now(),
		}
		f.order = append(f.order, id)

		props := actor.PropsFromProducer(subagent.New(id, msg.Goal, worker, f.maxSteps, f.pause))
		pid, err := ac.SpawnNamed(props, "subagent-"+id)
		if err != nil {
			l.Error().Err(err).Str(logger.SubagentIDField, id).Msg("unable to spawn subagent")
			f.end(f.records[id], models.Failed, err.Error())
			_ = worker.Close()
			ac.Respond(messages.SubagentSpawned{ID: id, Err: err})
			return
		}
		f.pids[id] = pid
		l.Info().Str(logger.SubagentIDField, id).Str("goal", msg.Goal).Msg("subagent spawned")
		ac.Respond(messages.SubagentSpawned{ID: id})
	case messages.SubagentProgress:
		if rec, ok := f.fromChild(ac, msg.ID); ok && rec.Status == models.Running {
			rec.StepsTaken = msg.StepsTaken
		}
	case messages.SubagentDone:
		rec, ok := f.fromChild(ac, msg.ID)
		if !ok || rec.Status != models.Running {
			l.Warn().Str(logger.SubagentIDField, msg.ID).Msg("ignoring report from unknown subagent")
			return
		}
		rec.StepsTaken = msg.StepsTaken
		f.end(rec, msg.Status, msg.Result)
		l.Info().Str(logger.SubagentIDField, msg.ID).Str("status", string(msg.Status)).Msg("subagent finished")
	case messages.GetSubagent:
		rec, ok := f.records[msg.ID]
		if !ok {
			ac.Respond(messages.SubagentStatus{})
			return
		}
		ac.Respond(messages.SubagentStatus{Record: f.snapshot(rec), Found: true})
	case messages.ListSubagents:
		records := make([]models.SubagentRecord, 0, len(f.order))
		for _, id := range f.order {
			records = append(records, f.snapshot(f.records[id]))
		}
		ac.Respond(messages.SubagentList{Records: records})
	default:
		l.Warn().Msgf("unknown message: %v", msg)
	}
}

// fromChild resolves a report, accepting it only from the subagent it names.
func (f *fleet) fromChild(ac actor.Context, id string) (*models.SubagentRecord, bool) {
	pid, ok := f.pids[id]
	if !ok || ac.Sender() == nil || ac.Sender().GetId() != pid.GetId() {
		return nil, false
	}
	return f.records[id], true
}

func (f *fleet) child(who *actor.PID) (string, bool) {
	for id, pid := range f.pids {
		if pid.GetId() == who.GetId() {
			return id, true
		}
	}
	return "", false
}

func (f *fleet) end(rec *models.SubagentRecord, status models.State, result string) {
	end := f.now()
	rec.Status = status
	rec.Result = &result
	rec.EndTime = &end
}

func (f *fleet) snapshot(rec *models.SubagentRecord) models.SubagentRecord {
	out := *rec
	end := f.now()
	if rec.EndTime != nil {
		end = *rec.EndTime
	}
	out.RuntimeSeconds = end.Sub(rec.StartTime).Seconds()
	return out
}
