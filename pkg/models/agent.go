package models

import (
	"time"
)

type HandlerResult struct {
	Question string
	Answer   string
	Error    error
}

// Action is a single tool invocation requested by the model.
type Action struct {
	ToolName string         `json:"tool_name"`
	ToolArgs map[string]any `json:"tool_args"`
}

type Actions struct {
	Thought string   `json:"thought"`
	Actions []Action `json:"actions"`
}

type Relationship struct {
	Source any    `json:"source"`
	Target any    `json:"target"`
	Type   string `json:"type"`
}

type Insight struct {
	Facts         []any          `json:"facts"`
	Relationships []Relationship `json:"relationships"`
}

type SuggestedTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

type Reflection struct {
	Outcome       string         `json:"outcome"`
	Lessons       string         `json:"lessons"`
	WhatWorked    string         `json:"what_worked"`
	WhatFailed    string         `json:"what_failed"`
	KeyFacts      []any          `json:"key_facts"`
	SuggestedTool *SuggestedTool `json:"suggested_tool"`
}

type SubagentRecord struct {
	ID             string     `json:"id"`
	Goal           string     `json:"goal"`
	Status         State      `json:"status"`
	Result         *string    `json:"result"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	StepsTaken     int        `json:"steps_taken"`
	RuntimeSeconds float64    `json:"runtime_seconds"`
}
