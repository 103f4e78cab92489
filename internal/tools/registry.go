// Package tools holds the capabilities the agent can invoke by name.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"go-dross/pkg/logger"
)

// Registry is a thread-safe set of tools. Execution never fails past its
// boundary: every failure is rendered as an error-tagged string.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]*Tool
	callbacks []Callback
}

type Option func(r *Registry)

func WithCallback(cb Callback) Option {
	return func(r *Registry) {
		r.callbacks = append(r.callbacks, cb)
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{tools: make(map[string]*Tool)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool
	log.Debug().Str(logger.ToolField, tool.Name).Msg("registered tool")
	return nil
}

func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Replace registers tool, overwriting any tool with the same name.
func (r *Registry) Replace(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
	return nil
}

// AddCallback adds an observer after construction.
func (r *Registry) AddCallback(cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas exports every tool schema sorted by name.
func (r *Registry) Schemas() []Export {
	names := r.Names()
	out := make([]Export, 0, len(names))
	for _, name := range names {
		if t := r.Get(name); t != nil {
			out = append(out, t.Export())
		}
	}
	return out
}

func (r *Registry) SchemasJSON() string {
	b, err := json.MarshalIndent(r.Schemas(), "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Execute runs the named tool and returns its output or an error-tagged string.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, env *Env) (out string) {
	tool := r.Get(name)
	if tool == nil {
		return fmt.Sprintf("Error: Tool '%s' not found.", name)
	}
	l := log.With().Str(logger.ToolField, name).Logger()

	validated, err := validateArgs(tool, args)
	if err != nil {
		l.Debug().Err(err).Msg("invalid tool arguments")
		return fmt.Sprintf("Error executing '%s': %v", name, err)
	}

	r.mu.RLock()
	callbacks := r.callbacks
	r.mu.RUnlock()
	for _, cb := range callbacks {
		cb(name, validated)
	}

	if !tool.WantsEnv {
		env = nil
	} else if env == nil {
		return fmt.Sprintf("Error executing '%s': %v", name, ErrNoEnv)
	}

	defer func() {
		if rec := recover(); rec != nil {
			l.Error().Interface("panic", rec).Msg("tool panicked")
			out = fmt.Sprintf("Error executing '%s': %v", name, rec)
		}
	}()

	l.Debug().Msg("executing tool")
	res, err := tool.Execute(ctx, validated, env)
	if err != nil {
		l.Debug().Err(err).Msg("tool failed")
		return fmt.Sprintf("Error executing '%s': %v", name, err)
	}
	return res
}

// IsError reports whether a tool output carries an error indicator.
func IsError(out string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(out)), "error")
}

func validateArgs(tool *Tool, args map[string]any) (Args, error) {
	out := make(Args, len(tool.Schema.Properties))
	for _, required := range tool.Schema.Required {
		if v, ok := args[required]; !ok || v == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingRequiredArg, required)
		}
	}
	for name, prop := range tool.Schema.Properties {
		v, ok := args[name]
		if !ok || v == nil {
			if prop.Default != nil {
				out[name] = prop.Default
			}
			continue
		}
		cv, ok := conform(prop.Type, v)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be %s", ErrInvalidArgType, name, prop.Type)
		}
		out[name] = cv
	}
	return out, nil
}
