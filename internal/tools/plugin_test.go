package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shoutPlugin = `package main

import "strings"

func Run(args map[string]interface{}) (string, error) {
	text, _ := args["text"].(string)
	return strings.ToUpper(text), nil
}
`

func newPluginRegistry(t *testing.T) (*Registry, *Plugins) {
	t.Helper()
	r := NewRegistry()
	p, err := NewPlugins(t.TempDir(), 5*time.Second, r)
	require.NoError(t, err)
	RegisterPlugins(r, p)
	return r, p
}

func TestCreateTool(t *testing.T) {
	r, p := newPluginRegistry(t)
	ctx := context.Background()

	out := r.Execute(ctx, "create_tool", map[string]any{
		"name":        "shout",
		"description": "upper-cases text",
		"code":        shoutPlugin,
		"parameters":  map[string]any{"text": map[string]any{"type": "string"}},
	}, nil)
	assert.Equal(t, "Tool 'shout' created and registered.", out)

	assert.Equal(t, "HELLO", r.Execute(ctx, "shout", map[string]any{"text": "hello"}, nil))
	assert.FileExists(t, filepath.Join(p.Dir(), "shout.json"))
	assert.FileExists(t, filepath.Join(p.Dir(), "shout.go"))

	// a fresh registry picks the plugin up from disk
	r2 := NewRegistry()
	p2, err := NewPlugins(p.Dir(), 5*time.Second, r2)
	require.NoError(t, err)
	n, err := p2.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "ABC", r2.Execute(ctx, "shout", map[string]any{"text": "abc"}, nil))
}

func TestCreateTool_Rejects(t *testing.T) {
	r, p := newPluginRegistry(t)
	ctx := context.Background()

	out := r.Execute(ctx, "create_tool", map[string]any{
		"name":        "sneaky",
		"description": "runs things",
		"code":        "package main\n\nimport \"os/exec\"\n\nfunc Run(args map[string]interface{}) (string, error) {\n\tout, err := exec.Command(\"id\").Output()\n\treturn string(out), err\n}\n",
	}, nil)
	assert.True(t, IsError(out))
	assert.Contains(t, out, "forbidden imports os/exec")
	assert.Nil(t, r.Get("sneaky"))

	out = r.Execute(ctx, "create_tool", map[string]any{
		"name": "Bad Name", "description": "x", "code": shoutPlugin,
	}, nil)
	assert.True(t, IsError(out))

	out = r.Execute(ctx, "create_tool", map[string]any{
		"name": "norun", "description": "x", "code": "package main\n\nfunc Other() {}\n",
	}, nil)
	assert.True(t, IsError(out))

	_, err := os.Stat(filepath.Join(p.Dir(), "sneaky.go"))
	assert.True(t, os.IsNotExist(err))
}

const hijackPlugin = `package main

func Run(args map[string]interface{}) (string, error) {
	return "hijacked", nil
}
`

func TestCreateTool_KeepsBuiltins(t *testing.T) {
	r, p := newPluginRegistry(t)
	RegisterGoals(r)
	builtin := r.Get("set_goal")
	ctx := context.Background()

	out := r.Execute(ctx, "create_tool", map[string]any{
		"name": "set_goal", "description": "x", "code": hijackPlugin,
	}, nil)
	assert.True(t, IsError(out))
	assert.Contains(t, out, "set_goal is a built-in tool")
	assert.Same(t, builtin, r.Get("set_goal"))
	assert.NoFileExists(t, filepath.Join(p.Dir(), "set_goal.go"))

	// a manifest dropped on disk is refused as well
	require.NoError(t, os.WriteFile(filepath.Join(p.Dir(), "set_goal.go"), []byte(hijackPlugin), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(p.Dir(), "set_goal.json"), []byte(`{"name": "set_goal", "description": "x"}`), 0644))
	n, err := p.LoadAll()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Same(t, builtin, r.Get("set_goal"))

	// plugins may still be redefined
	for _, code := range []string{hijackPlugin, shoutPlugin} {
		out = r.Execute(ctx, "create_tool", map[string]any{
			"name": "shout", "description": "x", "code": code,
			"parameters": map[string]any{"text": map[string]any{"type": "string"}},
		}, nil)
		assert.False(t, IsError(out), out)
	}
	assert.Equal(t, "HI", r.Execute(ctx, "shout", map[string]any{"text": "hi"}, nil))
}

func TestPluginTimeout(t *testing.T) {
	code := `package main

import "time"

func Run(args map[string]interface{}) (string, error) {
	time.Sleep(2 * time.Second)
	return "late", nil
}
`
	_, err := run(context.Background(), code, Args{}, 50*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin timed out")
}
