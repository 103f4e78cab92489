package tools

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafePath(t *testing.T) {
	root := t.TempDir()
	sb, err := NewSandbox(root)
	require.NoError(t, err)

	for _, escape := range []string{"../../etc/passwd", "/etc/passwd", "..", "a/../../b"} {
		_, err := sb.SafePath(escape)
		assert.ErrorIs(t, err, ErrPathEscape, escape)
	}

	a, err := sb.SafePath("workspace/x.txt")
	require.NoError(t, err)
	b, err := sb.SafePath("x.txt")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, filepath.Join(sb.Root(), "x.txt"), a)

	c, err := sb.SafePath(`workspace\x.txt`)
	require.NoError(t, err)
	assert.Equal(t, a, c)

	rootPath, err := sb.SafePath(".")
	require.NoError(t, err)
	assert.Equal(t, sb.Root(), rootPath)

	inside, err := sb.SafePath(filepath.Join(sb.Root(), "sub", "y.txt"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sb.Root(), "sub", "y.txt"), inside)

	_, err = sb.SafePath(sb.Root() + "-sibling/file")
	assert.ErrorIs(t, err, ErrPathEscape)
}
