package state

import (
	"context"
	"fmt"

	"go-dross/pkg/models"
)

// SetPlan replaces the plan with the given steps, all pending.
func (s *Store) SetPlan(ctx context.Context, steps []string) (models.Plan, error) {
	plan := models.Plan{Steps: make([]models.PlanStep, 0, len(steps))}
	for _, step := range steps {
		plan.Steps = append(plan.Steps, models.PlanStep{Description: step, Status: models.StepPending})
	}
	err := s.update(ctx, func(tx *txn) error {
		plan.CreatedAt = tx.now
		return tx.put(planRecord, plan)
	})
	if err != nil {
		return models.Plan{}, fmt.Errorf("set plan: %w", err)
	}
	return plan, nil
}

// Plan returns the current plan or ErrNoPlan.
func (s *Store) Plan(ctx context.Context) (models.Plan, error) {
	var plan models.Plan
	var found bool
	err := s.view(ctx, func(tx *txn) error {
		var err error
		found, err = tx.get(planRecord, &plan)
		return err
	})
	if err != nil {
		return models.Plan{}, fmt.Errorf("get plan: %w", err)
	}
	if !found {
		return models.Plan{}, ErrNoPlan
	}
	return plan, nil
}

func (s *Store) UpdatePlanStep(ctx context.Context, index int, status models.StepStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	err := s.update(ctx, func(tx *txn) error {
		var plan models.Plan
		found, err := tx.get(planRecord, &plan)
		if err != nil {
			return err
		}
		if !found {
			return ErrNoPlan
		}
		if index < 0 || index >= len(plan.Steps) {
			return ErrInvalidStepIndex
		}
		plan.Steps[index].Status = status
		return tx.put(planRecord, plan)
	})
	if err != nil {
		return fmt.Errorf("update plan step: %w", err)
	}
	return nil
}
