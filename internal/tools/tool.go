package tools

import (
	"context"
	"fmt"
	"time"

	"go-dross/internal/state"
)

// Abstract parameter types used in schemas.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// ExecuteFunc runs a tool. env is nil unless the tool sets WantsEnv.
type ExecuteFunc func(ctx context.Context, args Args, env *Env) (string, error)

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
}

type Schema struct {
	Required   []string            `json:"required"`
	Properties map[string]Property `json:"properties"`
}

// Tool is a callable capability together with its static schema.
type Tool struct {
	Name        string
	Description string
	Schema      Schema
	WantsEnv    bool
	Execute     ExecuteFunc
}

func (t *Tool) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTool)
	}
	if t.Execute == nil {
		return fmt.Errorf("%w: %s has no execute function", ErrInvalidTool, t.Name)
	}
	for _, r := range t.Schema.Required {
		if _, ok := t.Schema.Properties[r]; !ok {
			return fmt.Errorf("%w: %s requires undeclared parameter %s", ErrInvalidTool, t.Name, r)
		}
	}
	for name, p := range t.Schema.Properties {
		switch p.Type {
		case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject:
		default:
			return fmt.Errorf("%w: %s.%s has type %q", ErrInvalidTool, t.Name, name, p.Type)
		}
	}
	return nil
}

// Env describes the namespace a tool runs in.
type Env struct {
	Namespace string
	DataDir   string
	Now       time.Time
	State     *state.Store
	Journal   *state.Journal
}

// Callback observes every tool invocation before it runs.
type Callback func(name string, args map[string]any)

// Export is the serializable form of a tool schema.
type Export struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  ExportParameters `json:"parameters"`
}

type ExportParameters struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

func (t *Tool) Export() Export {
	props := make(map[string]Property, len(t.Schema.Properties))
	for k, v := range t.Schema.Properties {
		props[k] = v
	}
	required := make([]string, len(t.Schema.Required))
	copy(required, t.Schema.Required)
	return Export{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  ExportParameters{Type: TypeObject, Properties: props, Required: required},
	}
}
