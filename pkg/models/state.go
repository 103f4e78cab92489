package models

type State string

const (
	Running   State = "running"
	Completed State = "completed"
	Failed    State = "failed" // dead state
	Finished  State = "finished"
)

// Terminal reports whether a subagent in this state will no longer change.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Finished
}

type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalPostponed GoalStatus = "postponed"
	GoalCompleted GoalStatus = "completed"
	GoalFailed    GoalStatus = "failed"
)

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

func (s StepStatus) Valid() bool {
	return s == StepPending || s == StepCompleted || s == StepFailed
}

type Intent string

const (
	Direct Intent = "DIRECT"
	Reason Intent = "REASON"
	Tool   Intent = "TOOL"
)
