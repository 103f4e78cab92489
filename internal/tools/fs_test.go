package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileRegistry(t *testing.T) (*Registry, *Sandbox) {
	t.Helper()
	sb, err := NewSandbox(t.TempDir())
	require.NoError(t, err)
	r := NewRegistry()
	RegisterFiles(r, sb)
	return r, sb
}

func TestFileTools(t *testing.T) {
	r, sb := newFileRegistry(t)
	ctx := context.Background()

	out := r.Execute(ctx, "write_file", map[string]any{"filename": "workspace/notes/a.txt", "content": "hello"}, nil)
	assert.Equal(t, "Successfully wrote to workspace/notes/a.txt", out)

	b, err := os.ReadFile(filepath.Join(sb.Root(), "notes", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	assert.Equal(t, "hello", r.Execute(ctx, "read_file", map[string]any{"filename": "notes/a.txt"}, nil))
	assert.Equal(t, "File does not exist.", r.Execute(ctx, "read_file", map[string]any{"filename": "nope.txt"}, nil))
	assert.Equal(t, "Path is a directory, not a file.", r.Execute(ctx, "read_file", map[string]any{"filename": "notes"}, nil))

	assert.Equal(t, `["notes/"]`, r.Execute(ctx, "list_files", map[string]any{}, nil))
	assert.Equal(t, `["a.txt"]`, r.Execute(ctx, "list_files", map[string]any{"path": "notes"}, nil))
	assert.Equal(t, "Directory does not exist.", r.Execute(ctx, "list_files", map[string]any{"path": "ghost"}, nil))

	info := r.Execute(ctx, "get_file_info", map[string]any{"filename": "notes/a.txt"}, nil)
	assert.Contains(t, info, "Size: 5 bytes")
}

func TestFileTools_RejectEscapes(t *testing.T) {
	r, _ := newFileRegistry(t)
	ctx := context.Background()

	out := r.Execute(ctx, "read_file", map[string]any{"filename": "../../etc/passwd"}, nil)
	assert.True(t, IsError(out))
	assert.Contains(t, out, "path escapes the workspace root")

	out = r.Execute(ctx, "write_file", map[string]any{"filename": "/tmp/evil.txt", "content": "x"}, nil)
	assert.True(t, IsError(out))
}
