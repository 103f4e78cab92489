package models

import (
	"time"
)

type Goal struct {
	Description  string     `json:"description"`
	CreatedAt    time.Time  `json:"created_at"`
	Status       GoalStatus `json:"status"`
	IsAutonomous bool       `json:"is_autonomous"`
	Subtasks     []Subtask  `json:"subtasks"`
	Result       *string    `json:"result"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ResumedAt    *time.Time `json:"resumed_at,omitempty"`
	// Plan is only set on stacked goals and holds the plan they were suspended with.
	Plan         *Plan      `json:"plan,omitempty"`
}

type Subtask struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
}

type Plan struct {
	Steps     []PlanStep `json:"steps"`
	CreatedAt time.Time  `json:"created_at"`
}

type PlanStep struct {
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
}

// NextPending returns the index of the first pending step, or -1.
func (p Plan) NextPending() int {
	for i, s := range p.Steps {
		if s.Status == StepPending {
			return i
		}
	}
	return -1
}
