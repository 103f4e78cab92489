package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_runCommand(t *testing.T) {
	dir := t.TempDir()
	res, err := runCommand(context.Background(), dir, 5*time.Second, "bash", "-c", "echo out; echo err >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 3, res.ExitCode)

	_, err = runCommand(context.Background(), dir, 100*time.Millisecond, "bash", "-c", "sleep 5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestRunShell(t *testing.T) {
	sb, err := NewSandbox(t.TempDir())
	require.NoError(t, err)
	r := NewRegistry()
	RegisterShell(r, sb, 5*time.Second, 5*time.Second)

	out := r.Execute(context.Background(), "run_shell", map[string]any{"command": "pwd"}, nil)
	assert.Contains(t, out, "Command: pwd\nExit Code: 0\nSTDOUT:\n"+sb.Root())
	assert.Contains(t, out, "STDERR:\n(empty)")

	out = r.Execute(context.Background(), "verify_proposal", map[string]any{
		"filename": "main.go", "content": "package main\nfunc main() {}\n", "test_command": "test -f main.go",
	}, nil)
	assert.Contains(t, out, "Proposal written to main.go.tmp.")
	assert.Contains(t, out, "Verification Status: Success")
}
