// Package heartbeat advances the active goal of a namespace one plan step at a
// time on a fixed interval.
package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go-dross/internal/agents/heartbeat/handler"
	"go-dross/internal/llm"
	"go-dross/internal/namespace"
	"go-dross/internal/state"
	"go-dross/internal/tools"
	"go-dross/pkg/logger"
	"go-dross/pkg/models"
	"go-dross/pkg/prompts"
	"go-dross/pkg/retry"
	"go-dross/pkg/template"
)

const (
	PlanCompleted = "All plan steps completed."
	NoActions     = "No actions taken."

	resultPreview = 100
)

type Scheduler struct {
	ns       *namespace.Namespace
	registry *tools.Registry
	handler  *handler.Handler
	l        zerolog.Logger
}

func New(ns *namespace.Namespace, registry *tools.Registry, pool *llm.Pool) *Scheduler {
	return &Scheduler{
		ns:       ns,
		registry: registry,
		handler:  handler.New(pool),
		l:        log.With().Str(logger.NamespaceField, ns.Name()).Str(logger.AgentNameField, "heartbeat").Logger(),
	}
}

// Tick attempts exactly one pending step of the active goal's plan, generating
// the plan first when there is none. Once no step is pending the goal is
// completed and reflected upon. Without an active goal Tick does nothing and
// returns tools.NoActiveGoal.
func (s *Scheduler) Tick(ctx context.Context) (string, error) {
	s.ns.Lock()
	defer s.ns.Unlock()

	goal, err := s.ns.State.Goal(ctx)
	if errors.Is(err, state.ErrNoActiveGoal) {
		return tools.NoActiveGoal, nil
	}
	if err != nil {
		return "", err
	}

	plan, err := s.ns.State.Plan(ctx)
	if errors.Is(err, state.ErrNoPlan) {
		s.l.Info().Str("goal", goal.Description).Msg("no plan for goal, generating")
		steps, hRes := s.handler.Plan(ctx, goal.Description)
		if hRes.Error != nil {
			s.l.Warn().Err(hRes.Error).Msg("plan generation failed, using fallback plan")
		}
		plan, err = s.ns.State.SetPlan(ctx, steps)
	}
	if err != nil {
		return "", err
	}

	idx := plan.NextPending()
	if idx == -1 {
		return s.complete(ctx, goal, plan)
	}
	return s.step(ctx, goal, plan, idx)
}

func (s *Scheduler) step(ctx context.Context, goal models.Goal, plan models.Plan, idx int) (string, error) {
	step := plan.Steps[idx]
	l := s.l.With().Int(logger.StepField, idx).Logger()
	l.Info().Str("description", step.Description).Msg("executing step")

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("encode plan: %w", err)
	}
	goalState, err := template.Parse(prompts.StepState, struct {
		Environment, Goal, Step, Plan string
		Index                         int
	}{
		Environment: s.ns.Snapshot(),
		Goal:        goal.Description,
		Index:       idx,
		Step:        step.Description,
		Plan:        string(planJSON),
	})
	if err != nil {
		return "", err
	}

	actions, hRes := s.handler.Actions(ctx, goalState, s.registry.SchemasJSON(), "")
	if hRes.Error != nil {
		l.Warn().Err(hRes.Error).Msg("no usable actions")
	}
	if len(actions.Actions) == 0 {
		return NoActions, nil
	}

	env := s.ns.Env()
	status := models.StepCompleted
	results := make([]string, 0, len(actions.Actions))
	for _, action := range actions.Actions {
		if action.ToolName == "" {
			continue
		}
		out := s.registry.Execute(ctx, action.ToolName, action.ToolArgs, env)
		results = append(results, fmt.Sprintf("%s -> %s", action.ToolName, preview(out)))
		if tools.IsError(out) {
			status = models.StepFailed
		}
	}
	if len(results) == 0 {
		return NoActions, nil
	}

	if err := s.ns.State.UpdatePlanStep(ctx, idx, status); err != nil {
		return "", err
	}
	if status == models.StepFailed {
		l.Warn().Msg("step failed on tool error")
	}
	return strings.Join(results, " | "), nil
}

func (s *Scheduler) complete(ctx context.Context, goal models.Goal, plan models.Plan) (string, error) {
	s.l.Info().Str("goal", goal.Description).Msg("plan finished, completing goal")
	msg, err := s.ns.State.CompleteGoal(ctx, PlanCompleted)
	if err != nil {
		return "", err
	}

	summary := PlanCompleted
	now := time.Now()
	goal.Status = models.GoalCompleted
	goal.Result = &summary
	goal.CompletedAt = &now
	goal.Plan = &plan
	lesson := s.reflect(ctx, goal)
	s.l.Info().Str("reflection", lesson).Msg("reflected on goal")
	return msg, nil
}

// Run ticks every interval until ctx is done. Failed ticks back off
// exponentially up to maxBackoff and never stop the loop.
func (s *Scheduler) Run(ctx context.Context, interval, maxBackoff time.Duration) error {
	b := retry.NewBackoff(interval, maxBackoff)
	wait := interval
	for retry.Sleep(ctx, wait) {
		out, err := s.safeTick(ctx)
		if err != nil {
			wait = b.Next()
			s.l.Error().Err(err).Dur("retry_in", wait).Msg("heartbeat failed")
			continue
		}
		b.Reset()
		wait = interval
		if out != tools.NoActiveGoal {
			s.l.Info().Str("result", out).Msg("heartbeat")
		}
	}
	return ctx.Err()
}

func (s *Scheduler) safeTick(ctx context.Context) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("heartbeat panic: %v", rec)
		}
	}()
	return s.Tick(ctx)
}

func preview(s string) string {
	if r := []rune(s); len(r) > resultPreview {
		return string(r[:resultPreview])
	}
	return s
}
