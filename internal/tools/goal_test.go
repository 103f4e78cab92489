package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-dross/internal/state"
)

func newStateEnv(t *testing.T) *Env {
	t.Helper()
	dir := t.TempDir()
	store, err := state.New(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	journal, err := state.NewJournal(filepath.Join(dir, "journal.jsonl"))
	require.NoError(t, err)
	return &Env{Namespace: "test", DataDir: dir, State: store, Journal: journal}
}

func TestGoalTools(t *testing.T) {
	r := NewRegistry()
	RegisterGoals(r)
	env := newStateEnv(t)
	ctx := context.Background()

	assert.Equal(t, NoActiveGoal, r.Execute(ctx, "get_goal", nil, env))
	assert.Equal(t, "No active goal to complete.", r.Execute(ctx, "complete_goal", nil, env))

	assert.Equal(t, "Goal set: watch logs", r.Execute(ctx, "set_goal",
		map[string]any{"description": "watch logs", "is_autonomous": true}, env))
	out := r.Execute(ctx, "set_goal", map[string]any{"description": "write report"}, env)
	assert.Equal(t, "Goal set: write report (postponed 'watch logs')", out)
	assert.Contains(t, r.Execute(ctx, "get_goal", nil, env), `"description": "write report"`)

	out = r.Execute(ctx, "add_subtask", map[string]any{"description": "draft"}, env)
	assert.Contains(t, out, "Subtask added: draft (id: ")
	goal, err := env.State.Goal(ctx)
	require.NoError(t, err)
	require.Len(t, goal.Subtasks, 1)
	id := goal.Subtasks[0].ID

	assert.Equal(t, "[ ] "+id+": draft", r.Execute(ctx, "list_subtasks", nil, env))
	assert.Equal(t, "Subtask completed: draft", r.Execute(ctx, "complete_subtask", map[string]any{"subtask_id": id[:4]}, env))
	assert.Equal(t, "[x] "+id+": draft", r.Execute(ctx, "list_subtasks", nil, env))
	assert.Equal(t, "Subtask zzzz not found.", r.Execute(ctx, "complete_subtask", map[string]any{"subtask_id": "zzzz"}, env))

	assert.Equal(t, "Goal marked as completed. Resumed goal: watch logs",
		r.Execute(ctx, "complete_goal", map[string]any{"result_summary": "done"}, env))
	assert.Contains(t, r.Execute(ctx, "get_goal", nil, env), `"description": "watch logs"`)
}

func TestPlanTools(t *testing.T) {
	r := NewRegistry()
	RegisterGoals(r)
	env := newStateEnv(t)
	ctx := context.Background()

	assert.Equal(t, NoPlan, r.Execute(ctx, "get_plan", nil, env))
	assert.Equal(t, "No plan to update.", r.Execute(ctx, "update_plan_step", map[string]any{"step_index": 0}, env))

	out := r.Execute(ctx, "set_plan", map[string]any{"steps": []any{"one", "two"}}, env)
	assert.Equal(t, "Plan set with 2 steps.", out)

	assert.Equal(t, "Step 1 marked as completed.", r.Execute(ctx, "update_plan_step", map[string]any{"step_index": 1}, env))
	assert.True(t, IsError(r.Execute(ctx, "update_plan_step", map[string]any{"step_index": 5}, env)))
	assert.True(t, IsError(r.Execute(ctx, "update_plan_step", map[string]any{"step_index": 0, "status": "done"}, env)))

	plan, err := env.State.Plan(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pending", string(plan.Steps[0].Status))
	assert.Equal(t, "completed", string(plan.Steps[1].Status))
}

func TestJournalTools(t *testing.T) {
	r := NewRegistry()
	RegisterJournal(r)
	env := newStateEnv(t)
	ctx := context.Background()

	assert.Equal(t, "Journal is empty.", r.Execute(ctx, "read_journal", nil, env))
	for _, e := range []string{"first", "second", "third"} {
		assert.Equal(t, "Journal entry saved.", r.Execute(ctx, "write_journal", map[string]any{"entry": e}, env))
	}

	out := r.Execute(ctx, "read_journal", map[string]any{"last_n": 2}, env)
	assert.NotContains(t, out, "first")
	assert.Contains(t, out, "] second\n")
	assert.Contains(t, out, "] third")
}

func TestReadJournal_ClampsCount(t *testing.T) {
	r := NewRegistry()
	RegisterJournal(r)
	env := newStateEnv(t)
	ctx := context.Background()
	for i := 1; i <= 7; i++ {
		r.Execute(ctx, "write_journal", map[string]any{"entry": fmt.Sprintf("entry %d", i)}, env)
	}

	for _, n := range []int{0, -3} {
		out := r.Execute(ctx, "read_journal", map[string]any{"last_n": n}, env)
		lines := strings.Split(out, "\n")
		assert.Len(t, lines, defaultJournalEntries, "last_n %d", n)
		assert.NotContains(t, out, "entry 2")
		assert.Contains(t, out, "entry 7")
	}
}
