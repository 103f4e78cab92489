package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go-dross/pkg/models"
)

// SetGoal installs a new goal. A user goal outranks an autonomous one: a goal of
// equal or higher rank displaces the active goal onto the stack together with its
// plan, a lower ranked goal is queued on the stack behind the active one.
func (s *Store) SetGoal(ctx context.Context, description string, autonomous bool) (string, error) {
	var msg string
	err := s.update(ctx, func(tx *txn) error {
		goal := models.Goal{
			Description:  description,
			CreatedAt:    tx.now,
			Status:       models.GoalActive,
			IsAutonomous: autonomous,
			Subtasks:     []models.Subtask{},
		}

		var current models.Goal
		found, err := tx.get(goalRecord, &current)
		if err != nil {
			return err
		}
		if !found || current.Status != models.GoalActive {
			msg = fmt.Sprintf("Goal set: %s", description)
			if err := tx.del(planRecord); err != nil {
				return err
			}
			return tx.put(goalRecord, goal)
		}

		stack, err := tx.stack()
		if err != nil {
			return err
		}

		if autonomous && !current.IsAutonomous {
			goal.Status = models.GoalPostponed
			stack = append(stack, goal)
			msg = fmt.Sprintf("Goal queued behind active goal '%s': %s", current.Description, description)
			return tx.put(stackRecord, stack)
		}

		var plan models.Plan
		hasPlan, err := tx.get(planRecord, &plan)
		if err != nil {
			return err
		}
		current.Status = models.GoalPostponed
		if hasPlan {
			current.Plan = &plan
		}
		stack = append(stack, current)
		if err := tx.put(stackRecord, stack); err != nil {
			return err
		}
		if err := tx.del(planRecord); err != nil {
			return err
		}
		msg = fmt.Sprintf("Goal set: %s (postponed '%s')", description, current.Description)
		return tx.put(goalRecord, goal)
	})
	if err != nil {
		return "", fmt.Errorf("set goal: %w", err)
	}
	return msg, nil
}

// Goal returns the active goal or ErrNoActiveGoal.
func (s *Store) Goal(ctx context.Context) (models.Goal, error) {
	goal, found, err := s.CurrentGoal(ctx)
	if err != nil {
		return models.Goal{}, err
	}
	if !found || goal.Status != models.GoalActive {
		return models.Goal{}, ErrNoActiveGoal
	}
	return goal, nil
}

// CurrentGoal returns the goal record whatever its status.
func (s *Store) CurrentGoal(ctx context.Context) (models.Goal, bool, error) {
	var goal models.Goal
	var found bool
	err := s.view(ctx, func(tx *txn) error {
		var err error
		found, err = tx.get(goalRecord, &goal)
		return err
	})
	if err != nil {
		return models.Goal{}, false, fmt.Errorf("get goal: %w", err)
	}
	return goal, found, nil
}

// Stack returns the postponed goals, bottom first.
func (s *Store) Stack(ctx context.Context) ([]models.Goal, error) {
	var stack []models.Goal
	err := s.view(ctx, func(tx *txn) error {
		var err error
		stack, err = tx.stack()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get stack: %w", err)
	}
	return stack, nil
}

// CompleteGoal marks the active goal completed and resumes the top of the stack.
func (s *Store) CompleteGoal(ctx context.Context, summary string) (string, error) {
	var msg string
	err := s.update(ctx, func(tx *txn) error {
		var goal models.Goal
		found, err := tx.get(goalRecord, &goal)
		if err != nil {
			return err
		}
		if !found || goal.Status != models.GoalActive {
			return ErrNoActiveGoal
		}

		now := tx.now
		goal.Status = models.GoalCompleted
		goal.Result = &summary
		goal.CompletedAt = &now
		msg = "Goal marked as completed."
		if err := tx.del(planRecord); err != nil {
			return err
		}

		stack, err := tx.stack()
		if err != nil {
			return err
		}
		if len(stack) == 0 {
			return tx.put(goalRecord, goal)
		}

		resumed := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		resumed.Status = models.GoalActive
		resumed.ResumedAt = &now
		if resumed.Plan != nil {
			if err := tx.put(planRecord, resumed.Plan); err != nil {
				return err
			}
			resumed.Plan = nil
		}
		if err := tx.put(stackRecord, stack); err != nil {
			return err
		}
		msg = fmt.Sprintf("Goal marked as completed. Resumed goal: %s", resumed.Description)
		return tx.put(goalRecord, resumed)
	})
	if err != nil {
		return "", fmt.Errorf("complete goal: %w", err)
	}
	return msg, nil
}

func (s *Store) AddSubtask(ctx context.Context, description string) (models.Subtask, error) {
	subtask := models.Subtask{
		ID:          uuid.NewString()[:8],
		Description: description,
		Status:      models.StepPending,
	}
	err := s.updateGoal(ctx, func(goal *models.Goal) error {
		goal.Subtasks = append(goal.Subtasks, subtask)
		return nil
	})
	if err != nil {
		return models.Subtask{}, fmt.Errorf("add subtask: %w", err)
	}
	return subtask, nil
}

func (s *Store) Subtasks(ctx context.Context) ([]models.Subtask, error) {
	goal, err := s.Goal(ctx)
	if err != nil {
		return nil, err
	}
	return goal.Subtasks, nil
}

// CompleteSubtask completes the first subtask whose id contains partialID.
func (s *Store) CompleteSubtask(ctx context.Context, partialID string) (models.Subtask, error) {
	var done models.Subtask
	err := s.updateGoal(ctx, func(goal *models.Goal) error {
		for i := range goal.Subtasks {
			if strings.Contains(goal.Subtasks[i].ID, partialID) {
				goal.Subtasks[i].Status = models.StepCompleted
				done = goal.Subtasks[i]
				return nil
			}
		}
		return ErrSubtaskNotFound
	})
	if err != nil {
		return models.Subtask{}, fmt.Errorf("complete subtask: %w", err)
	}
	return done, nil
}

func (s *Store) updateGoal(ctx context.Context, fn func(goal *models.Goal) error) error {
	return s.update(ctx, func(tx *txn) error {
		var goal models.Goal
		found, err := tx.get(goalRecord, &goal)
		if err != nil {
			return err
		}
		if !found || goal.Status != models.GoalActive {
			return ErrNoActiveGoal
		}
		if err := fn(&goal); err != nil {
			return err
		}
		return tx.put(goalRecord, goal)
	})
}

func (t *txn) stack() ([]models.Goal, error) {
	stack := []models.Goal{}
	if _, err := t.get(stackRecord, &stack); err != nil {
		return nil, err
	}
	return stack, nil
}
