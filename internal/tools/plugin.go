package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go-dross/pkg/logger"
)

var (
	ErrInvalidPlugin = errors.New("invalid plugin")

	pluginName = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

	allowedImports = map[string]bool{
		"bytes":           true,
		"encoding/base64": true,
		"encoding/json":   true,
		"errors":          true,
		"fmt":             true,
		"math":            true,
		"regexp":          true,
		"sort":            true,
		"strconv":         true,
		"strings":         true,
		"time":            true,
		"unicode":         true,
	}
)

// Manifest describes a plugin tool. Its Go source lives next to it in <name>.go
// and must define func Run(args map[string]interface{}) (string, error).
type Manifest struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Parameters  map[string]Property `json:"parameters"`
	Required    []string            `json:"required"`
}

type runFunc func(map[string]interface{}) (string, error)

// Plugins loads interpreted tools from a directory into a registry.
// Names held by a built-in tool are never taken over by a plugin.
type Plugins struct {
	dir      string
	timeout  time.Duration
	registry *Registry

	mu    sync.Mutex
	owned map[string]bool
}

func NewPlugins(dir string, timeout time.Duration, r *Registry) (*Plugins, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create plugin directory: %w", err)
	}
	return &Plugins{dir: dir, timeout: timeout, registry: r, owned: make(map[string]bool)}, nil
}

func (p *Plugins) Dir() string {
	return p.dir
}

// Create validates and stores a new plugin, then registers it.
func (p *Plugins) Create(m Manifest, code string) error {
	if err := validatePlugin(m, code); err != nil {
		return err
	}
	if err := p.claimable(m.Name); err != nil {
		return err
	}
	if _, err := compile(code); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlugin, err)
	}

	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	// source first so the watcher never sees a manifest without code
	if err := os.WriteFile(filepath.Join(p.dir, m.Name+".go"), []byte(code), 0644); err != nil {
		return fmt.Errorf("write plugin source: %w", err)
	}
	if err := os.WriteFile(filepath.Join(p.dir, m.Name+".json"), manifest, 0644); err != nil {
		return fmt.Errorf("write plugin manifest: %w", err)
	}
	return p.register(m, code)
}

// LoadAll registers every plugin found in the directory and returns how many loaded.
func (p *Plugins) LoadAll() (int, error) {
	matches, err := filepath.Glob(filepath.Join(p.dir, "*.json"))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, path := range matches {
		if err := p.Load(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping plugin")
			continue
		}
		n++
	}
	return n, nil
}

// Load registers the plugin described by the manifest at path.
func (p *Plugins) Load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("%w: decode manifest: %v", ErrInvalidPlugin, err)
	}
	code, err := os.ReadFile(filepath.Join(p.dir, m.Name+".go"))
	if err != nil {
		return fmt.Errorf("read plugin source: %w", err)
	}
	if err := validatePlugin(m, string(code)); err != nil {
		return err
	}
	if _, err := compile(string(code)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlugin, err)
	}
	return p.register(m, string(code))
}

func (p *Plugins) claimable(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.registry.Get(name) != nil && !p.owned[name] {
		return fmt.Errorf("%w: %s is a built-in tool", ErrToolAlreadyRegistered, name)
	}
	return nil
}

func (p *Plugins) register(m Manifest, code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.registry.Get(m.Name) != nil && !p.owned[m.Name] {
		return fmt.Errorf("%w: %s is a built-in tool", ErrToolAlreadyRegistered, m.Name)
	}
	props := m.Parameters
	if props == nil {
		props = map[string]Property{}
	}
	timeout := p.timeout
	err := p.registry.Replace(&Tool{
		Name:        m.Name,
		Description: m.Description,
		Schema:      Schema{Required: m.Required, Properties: props},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			return run(ctx, code, args, timeout)
		},
	})
	if err != nil {
		return err
	}
	p.owned[m.Name] = true
	log.Info().Str(logger.ToolField, m.Name).Msg("plugin tool loaded")
	return nil
}

// run interprets code in a fresh interpreter. An interpreted call that outlives
// the timeout is abandoned.
func run(ctx context.Context, code string, args Args, timeout time.Duration) (string, error) {
	fn, err := compile(code)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("plugin panic: %v", rec)}
			}
		}()
		out, err := fn(map[string]interface{}(args))
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("plugin timed out: %w", ctx.Err())
	}
}

func compile(code string) (runFunc, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib: %w", err)
	}
	if _, err := i.Eval(code); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	v, err := i.Eval("main.Run")
	if err != nil {
		return nil, fmt.Errorf("Run not found: %w", err)
	}
	fn, ok := v.Interface().(func(map[string]interface{}) (string, error))
	if !ok {
		return nil, errors.New("Run must have signature func(map[string]interface{}) (string, error)")
	}
	return fn, nil
}

func validatePlugin(m Manifest, code string) error {
	if !pluginName.MatchString(m.Name) {
		return fmt.Errorf("%w: bad name %q", ErrInvalidPlugin, m.Name)
	}
	f, err := parser.ParseFile(token.NewFileSet(), m.Name+".go", code, parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlugin, err)
	}
	if f.Name.Name != "main" {
		return fmt.Errorf("%w: package must be main", ErrInvalidPlugin)
	}
	var forbidden []string
	for _, imp := range f.Imports {
		path, _ := strconv.Unquote(imp.Path.Value)
		if !allowedImports[path] {
			forbidden = append(forbidden, path)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("%w: forbidden imports %s", ErrInvalidPlugin, strings.Join(forbidden, ", "))
	}
	return nil
}

// RegisterPlugins adds the create_tool tool backed by p.
func RegisterPlugins(r *Registry, p *Plugins) {
	r.MustRegister(&Tool{
		Name: "create_tool",
		Description: "Registers a new tool at runtime. code is Go source in package main defining " +
			"func Run(args map[string]interface{}) (string, error); only pure standard library packages may be imported.",
		Schema: Schema{
			Required: []string{"name", "description", "code"},
			Properties: map[string]Property{
				"name":        {Type: TypeString},
				"description": {Type: TypeString},
				"code":        {Type: TypeString},
				"parameters":  {Type: TypeObject, Description: "map of parameter name to {type, description}"},
			},
		},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			m := Manifest{
				Name:        args.String("name"),
				Description: args.String("description"),
				Parameters:  map[string]Property{},
			}
			if raw, ok := args["parameters"].(map[string]any); ok {
				b, _ := json.Marshal(raw)
				if err := json.Unmarshal(b, &m.Parameters); err != nil {
					return "", fmt.Errorf("%w: parameters: %v", ErrInvalidPlugin, err)
				}
			}
			if err := p.Create(m, args.String("code")); err != nil {
				return "", err
			}
			return fmt.Sprintf("Tool '%s' created and registered.", m.Name), nil
		},
	})
}
