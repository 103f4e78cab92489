package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGlobal(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	_, err := NewGlobal("loud", false, "")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "logs", "dross.log")
	closer, err := NewGlobal("info", false, path)
	require.NoError(t, err)

	log.Info().Str(ToolField, "read_file").Msg("hello file")
	log.Debug().Msg("filtered")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"tool":"read_file"`)
	assert.Contains(t, string(b), `"message":"hello file"`)
	assert.NotContains(t, string(b), "filtered")
}

func TestNewFile(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	path := filepath.Join(t.TempDir(), "chat.log")
	closer, err := NewFile("debug", path)
	require.NoError(t, err)
	log.Debug().Str(NamespaceField, "main").Msg("only in the file")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"namespace":"main"`)
}
