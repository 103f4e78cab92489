package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivity_KeepsMostRecent(t *testing.T) {
	a := NewActivity(3)
	for _, c := range []string{"a", "b", "c", "d"} {
		a.Log(c)
	}

	events := a.Recent(0)
	require.Len(t, events, 3)
	assert.Equal(t, "b", events[0].Content)
	assert.Equal(t, "d", events[2].Content)
	assert.Len(t, a.Recent(1), 1)
	assert.False(t, events[0].Time.IsZero())
}

func TestActivity_GoalToolsRefreshStatus(t *testing.T) {
	a := NewActivity(0)
	a.ToolStarted("read_file", map[string]any{"filename": "x"})
	a.ToolStarted("set_goal", map[string]any{"description": "y"})

	events := a.Recent(0)
	require.Len(t, events, 3)
	assert.Equal(t, EventToolStart, events[0].Type)
	assert.Equal(t, "x", events[0].Args["filename"])
	assert.Equal(t, EventRefreshStatus, events[2].Type)
}

func TestActivity_Subscribe(t *testing.T) {
	a := NewActivity(0)
	ch, unsubscribe := a.Subscribe()
	a.Log("hello")

	select {
	case e := <-ch:
		assert.Equal(t, "hello", e.Content)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
	a.Log("after")
}
