package console

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-dross/internal/agents/pipeline"
	"go-dross/pkg/models"
)

func enter(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestModel_AsksAndShowsReply(t *testing.T) {
	var asked []string
	m := New(context.Background(), func(_ context.Context, input string) pipeline.Result {
		asked = append(asked, input)
		return pipeline.Result{Intent: models.Tool, ToolName: "list_files", ToolResult: "a.txt\nb.txt", Reply: "Two files."}
	})

	m, cmd := enter(t, m, "  what is here?  ")
	require.NotNil(t, cmd)
	assert.True(t, m.thinking)
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.View(), "thinking...")

	// a second enter while thinking is ignored
	m2, cmd2 := enter(t, m, "again")
	assert.Nil(t, cmd2)

	msg := cmd()
	next, _ := m2.Update(msg)
	m = next.(Model)

	assert.Equal(t, []string{"what is here?"}, asked)
	assert.False(t, m.thinking)
	out := strings.Join(m.lines, "\n")
	assert.Contains(t, out, "what is here?")
	assert.Contains(t, out, "[list_files] a.txt b.txt")
	assert.Contains(t, out, "Two files.")
}

func TestModel_Quit(t *testing.T) {
	for _, word := range []string{"exit", "QUIT"} {
		m := New(context.Background(), func(context.Context, string) pipeline.Result {
			t.Fatal("should not be asked")
			return pipeline.Result{}
		})
		_, cmd := enter(t, m, word)
		require.NotNil(t, cmd)
		assert.Equal(t, tea.Quit(), cmd())
	}
}

func TestModel_IgnoresBlankInput(t *testing.T) {
	m := New(context.Background(), nil)
	m, cmd := enter(t, m, "   ")
	assert.Nil(t, cmd)
	assert.False(t, m.thinking)
}

func Test_preview(t *testing.T) {
	assert.Equal(t, "a b", preview("a\nb"))
	assert.Equal(t, strings.Repeat("x", 100)+"...", preview(strings.Repeat("x", 150)))
}
