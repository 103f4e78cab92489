package messages

import (
	"go-dross/pkg/models"
)

// SpawnSubagent asks the fleet to start a subagent. The fleet responds with
// SubagentSpawned.
type SpawnSubagent struct {
	Goal string
}

type SubagentSpawned struct {
	ID  string
	Err error
}

type GetSubagent struct {
	ID string
}

type SubagentStatus struct {
	Record models.SubagentRecord
	Found  bool
}

type ListSubagents struct{}

type SubagentList struct {
	Records []models.SubagentRecord
}

// Tick drives one heartbeat of a subagent.
type Tick struct{}

// SubagentProgress is reported by a subagent after every tick.
type SubagentProgress struct {
	ID         string
	StepsTaken int
}

// SubagentDone is the final report of a subagent.
type SubagentDone struct {
	ID         string
	Status     models.State
	Result     string
	StepsTaken int
}
