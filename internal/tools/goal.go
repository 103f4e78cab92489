package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go-dross/internal/state"
	"go-dross/pkg/models"
)

const (
	NoActiveGoal = "No active goal."
	NoPlan       = "No plan defined."
)

// RegisterGoals adds the goal, subtask and plan tools. They act on the state
// store of the namespace they are executed in.
func RegisterGoals(r *Registry) {
	r.MustRegister(&Tool{
		Name:        "set_goal",
		Description: "Sets the current high-level goal. A user goal pre-empts an active autonomous goal, which resumes once the new goal completes.",
		Schema: Schema{
			Required: []string{"description"},
			Properties: map[string]Property{
				"description":   {Type: TypeString},
				"is_autonomous": {Type: TypeBoolean, Default: false},
			},
		},
		WantsEnv: true,
		Execute: func(ctx context.Context, args Args, env *Env) (string, error) {
			return env.State.SetGoal(ctx, args.String("description"), args.Bool("is_autonomous"))
		},
	})

	r.MustRegister(&Tool{
		Name:        "get_goal",
		Description: "Returns the active goal as JSON.",
		Schema:      Schema{Properties: map[string]Property{}},
		WantsEnv:    true,
		Execute: func(ctx context.Context, args Args, env *Env) (string, error) {
			goal, err := env.State.Goal(ctx)
			if errors.Is(err, state.ErrNoActiveGoal) {
				return NoActiveGoal, nil
			}
			if err != nil {
				return "", err
			}
			return toJSON(goal)
		},
	})

	r.MustRegister(&Tool{
		Name:        "complete_goal",
		Description: "Marks the active goal as completed and resumes the most recently postponed goal.",
		Schema: Schema{Properties: map[string]Property{
			"result_summary": {Type: TypeString, Default: "Goal reached."},
		}},
		WantsEnv: true,
		Execute: func(ctx context.Context, args Args, env *Env) (string, error) {
			msg, err := env.State.CompleteGoal(ctx, args.String("result_summary"))
			if errors.Is(err, state.ErrNoActiveGoal) {
				return "No active goal to complete.", nil
			}
			return msg, err
		},
	})

	r.MustRegister(&Tool{
		Name:        "add_subtask",
		Description: "Adds a checklist item to the active goal.",
		Schema: Schema{
			Required:   []string{"description"},
			Properties: map[string]Property{"description": {Type: TypeString}},
		},
		WantsEnv: true,
		Execute: func(ctx context.Context, args Args, env *Env) (string, error) {
			st, err := env.State.AddSubtask(ctx, args.String("description"))
			if errors.Is(err, state.ErrNoActiveGoal) {
				return NoActiveGoal, nil
			}
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Subtask added: %s (id: %s)", st.Description, st.ID), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "list_subtasks",
		Description: "Lists the subtasks of the active goal.",
		Schema:      Schema{Properties: map[string]Property{}},
		WantsEnv:    true,
		Execute: func(ctx context.Context, args Args, env *Env) (string, error) {
			subtasks, err := env.State.Subtasks(ctx)
			if errors.Is(err, state.ErrNoActiveGoal) {
				return NoActiveGoal, nil
			}
			if err != nil {
				return "", err
			}
			if len(subtasks) == 0 {
				return "No subtasks.", nil
			}
			lines := make([]string, 0, len(subtasks))
			for _, st := range subtasks {
				mark := "[ ]"
				if st.Status == models.StepCompleted {
					mark = "[x]"
				}
				lines = append(lines, fmt.Sprintf("%s %s: %s", mark, st.ID, st.Description))
			}
			return strings.Join(lines, "\n"), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "complete_subtask",
		Description: "Marks the first subtask whose id contains subtask_id as completed.",
		Schema: Schema{
			Required:   []string{"subtask_id"},
			Properties: map[string]Property{"subtask_id": {Type: TypeString}},
		},
		WantsEnv: true,
		Execute: func(ctx context.Context, args Args, env *Env) (string, error) {
			id := args.String("subtask_id")
			st, err := env.State.CompleteSubtask(ctx, id)
			switch {
			case errors.Is(err, state.ErrNoActiveGoal):
				return NoActiveGoal, nil
			case errors.Is(err, state.ErrSubtaskNotFound):
				return fmt.Sprintf("Subtask %s not found.", id), nil
			case err != nil:
				return "", err
			}
			return fmt.Sprintf("Subtask completed: %s", st.Description), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "set_plan",
		Description: "Replaces the plan for the active goal with an ordered list of steps.",
		Schema: Schema{
			Required:   []string{"steps"},
			Properties: map[string]Property{"steps": {Type: TypeArray}},
		},
		WantsEnv: true,
		Execute: func(ctx context.Context, args Args, env *Env) (string, error) {
			plan, err := env.State.SetPlan(ctx, args.Strings("steps"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Plan set with %d steps.", len(plan.Steps)), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "get_plan",
		Description: "Returns the current plan as JSON.",
		Schema:      Schema{Properties: map[string]Property{}},
		WantsEnv:    true,
		Execute: func(ctx context.Context, args Args, env *Env) (string, error) {
			plan, err := env.State.Plan(ctx)
			if errors.Is(err, state.ErrNoPlan) {
				return NoPlan, nil
			}
			if err != nil {
				return "", err
			}
			return toJSON(plan)
		},
	})

	r.MustRegister(&Tool{
		Name:        "update_plan_step",
		Description: "Sets the status (pending, completed, failed) of the plan step at step_index.",
		Schema: Schema{
			Required: []string{"step_index"},
			Properties: map[string]Property{
				"step_index": {Type: TypeInteger},
				"status":     {Type: TypeString, Default: string(models.StepCompleted)},
			},
		},
		WantsEnv: true,
		Execute: func(ctx context.Context, args Args, env *Env) (string, error) {
			idx := args.Int("step_index")
			status := models.StepStatus(args.String("status"))
			err := env.State.UpdatePlanStep(ctx, idx, status)
			switch {
			case errors.Is(err, state.ErrNoPlan):
				return "No plan to update.", nil
			case errors.Is(err, state.ErrInvalidStepIndex):
				return "", state.ErrInvalidStepIndex
			case err != nil:
				return "", err
			}
			return fmt.Sprintf("Step %d marked as %s.", idx, status), nil
		},
	})
}

func toJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
