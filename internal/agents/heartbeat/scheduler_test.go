package heartbeat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go-dross/internal/agents/pipeline"
	"go-dross/internal/llm"
	"go-dross/internal/llm/llmtest"
	"go-dross/internal/memory"
	"go-dross/internal/namespace"
	"go-dross/internal/state"
	"go-dross/internal/tools"
	"go-dross/pkg/models"
)

type script struct {
	mu         sync.Mutex
	plan       string
	actions    string
	reflection string
	err        error
}

func (s *script) respond(messages []llms.MessageContent) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	text := llmtest.Text(messages)
	switch {
	case strings.Contains(text, "strategic planner"):
		return s.plan, nil
	case strings.Contains(text, "TOOLS AVAILABLE"):
		return s.actions, nil
	case strings.Contains(text, "reflecting on a goal"):
		return s.reflection, nil
	}
	return "", errors.New("unexpected prompt")
}

type fixture struct {
	ns    *namespace.Namespace
	model *llmtest.Model
	s     *Scheduler
}

func newFixture(t *testing.T, sc *script) *fixture {
	t.Helper()
	ns, err := namespace.Open(namespace.Config{
		Name:     "main",
		DataDir:  filepath.Join(t.TempDir(), "data"),
		Embedder: memory.NewHashEmbedder(1 << 14),
		Memory:   memory.DefaultOptions(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { ns.Close() })

	sb, err := tools.NewSandbox(ns.Workspace())
	require.NoError(t, err)
	r := tools.NewRegistry()
	tools.RegisterFiles(r, sb)
	tools.RegisterGoals(r)
	tools.RegisterJournal(r)

	model := llmtest.NewFunc(sc.respond)
	pool := llm.NewWithModels(map[llm.Role]llms.Model{llm.General: model}, time.Second)
	return &fixture{ns: ns, model: model, s: New(ns, r, pool)}
}

func (f *fixture) setGoal(t *testing.T, desc string, steps ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.ns.State.SetGoal(ctx, desc, false)
	require.NoError(t, err)
	if len(steps) > 0 {
		_, err = f.ns.State.SetPlan(ctx, steps)
		require.NoError(t, err)
	}
}

func (f *fixture) plan(t *testing.T) models.Plan {
	t.Helper()
	plan, err := f.ns.State.Plan(context.Background())
	require.NoError(t, err)
	return plan
}

const writeAction = `{"thought": "save notes", "actions": [{"tool_name": "write_file", "tool_args": {"filename": "notes.txt", "content": "x"}}]}`

func TestTick_NoGoal(t *testing.T) {
	f := newFixture(t, &script{})

	out, err := f.s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tools.NoActiveGoal, out)
	assert.Empty(t, f.model.Calls())
}

func TestTick_ExecutesExactlyOneStep(t *testing.T) {
	f := newFixture(t, &script{actions: writeAction})
	f.setGoal(t, "write notes", "draft notes", "review notes", "publish notes")

	out, err := f.s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "write_file -> Successfully wrote to notes.txt", out)

	plan := f.plan(t)
	changed := 0
	for _, step := range plan.Steps {
		if step.Status != models.StepPending {
			changed++
		}
	}
	assert.Equal(t, 1, changed)
	assert.Equal(t, models.StepCompleted, plan.Steps[0].Status)

	calls := f.model.Calls()
	require.Len(t, calls, 1)
	prompt := llmtest.Text(calls[0])
	assert.Contains(t, prompt, "ACTIVE STEP (0): draft notes")
	assert.Contains(t, prompt, "LOCAL ENVIRONMENT")
}

func TestTick_ToolErrorFailsStep(t *testing.T) {
	f := newFixture(t, &script{
		actions: `{"thought": "x", "actions": [
			{"tool_name": "write_file", "tool_args": {"filename": "ok.txt", "content": "x"}},
			{"tool_name": "read_file", "tool_args": {"filename": "../../etc/passwd"}}]}`,
	})
	f.setGoal(t, "snoop", "read secrets", "report")

	out, err := f.s.Tick(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "read_file -> Error executing 'read_file'")

	plan := f.plan(t)
	assert.Equal(t, models.StepFailed, plan.Steps[0].Status)
	assert.Equal(t, models.StepPending, plan.Steps[1].Status)

	f2 := newFixture(t, &script{actions: `{"actions": [{"tool_name": "missing_tool", "tool_args": {}}]}`})
	f2.setGoal(t, "anything", "one")
	_, err = f2.s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StepFailed, f2.plan(t).Steps[0].Status)
}

func TestTick_NoActionsLeavesStepPending(t *testing.T) {
	f := newFixture(t, &script{actions: `I am not sure what to do.`})
	f.setGoal(t, "ponder", "think")

	out, err := f.s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NoActions, out)
	assert.Equal(t, models.StepPending, f.plan(t).Steps[0].Status)
}

func TestTick_GeneratesPlan(t *testing.T) {
	f := newFixture(t, &script{
		plan:    "<think>hmm</think>```json\n[\"list files\", \"read notes\"]\n```",
		actions: `{"thought": "later", "actions": []}`,
	})
	f.setGoal(t, "summarize the notes")

	out, err := f.s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NoActions, out)

	plan := f.plan(t)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "list files", plan.Steps[0].Description)
	assert.Equal(t, models.StepPending, plan.Steps[1].Status)
}

func TestTick_BackendDownUsesFallbackPlan(t *testing.T) {
	f := newFixture(t, &script{err: errors.New("connection refused")})
	f.setGoal(t, "summarize the notes")

	out, err := f.s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NoActions, out)

	plan := f.plan(t)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "Execute: summarize the notes", plan.Steps[0].Description)
}

func TestTick_CompletesGoalAndReflects(t *testing.T) {
	f := newFixture(t, &script{
		reflection: "```json\n" + `{"outcome": "success", "lessons": "Listing files first gives useful context.",
			"what_worked": "listing", "what_failed": "nothing",
			"key_facts": ["short", "The workspace holds three files.", {"files": 3}], "suggested_tool": null}` + "\n```",
	})
	ctx := context.Background()
	f.setGoal(t, "inventory the workspace", "list files", "count files")
	require.NoError(t, f.ns.State.UpdatePlanStep(ctx, 0, models.StepCompleted))
	require.NoError(t, f.ns.State.UpdatePlanStep(ctx, 1, models.StepCompleted))

	out, err := f.s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Goal marked as completed.", out)

	goal, found, err := f.ns.State.CurrentGoal(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.GoalCompleted, goal.Status)
	require.NotNil(t, goal.Result)
	assert.Equal(t, PlanCompleted, *goal.Result)
	_, err = f.ns.State.Plan(ctx)
	assert.ErrorIs(t, err, state.ErrNoPlan)

	docs, err := f.ns.Memory.All(ctx)
	require.NoError(t, err)
	byType := map[string][]string{}
	for _, d := range docs {
		byType[d.Metadata["type"]] = append(byType[d.Metadata["type"]], d.Content)
	}
	assert.ElementsMatch(t, []string{"The workspace holds three files.", "files: 3"}, byType[memory.TypeAtomicFact])
	require.Len(t, byType[memory.TypeSelfImprovement], 1)
	assert.Equal(t, "LESSON [success]: Listing files first gives useful context.. Worked: listing. Gaps: nothing.",
		byType[memory.TypeSelfImprovement][0])

	entries, err := f.ns.Journal.Read(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Entry, `"outcome":"success"`)

	// the next tick has nothing to do
	out, err = f.s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, tools.NoActiveGoal, out)
}

func TestTick_CompletionResumesPostponedGoal(t *testing.T) {
	f := newFixture(t, &script{reflection: "ok"})
	ctx := context.Background()
	_, err := f.ns.State.SetGoal(ctx, "watch the logs", true)
	require.NoError(t, err)
	_, err = f.ns.State.SetPlan(ctx, []string{"tail logs"})
	require.NoError(t, err)

	f.setGoal(t, "answer the user", "reply")
	require.NoError(t, f.ns.State.UpdatePlanStep(ctx, 0, models.StepCompleted))

	out, err := f.s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Goal marked as completed. Resumed goal: watch the logs", out)

	plan := f.plan(t)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "tail logs", plan.Steps[0].Description)
}

func TestReflect(t *testing.T) {
	goal := models.Goal{Description: "tidy up", Status: models.GoalCompleted}

	tests := []struct {
		name       string
		reflection string
		want       string
		saved      int
	}{
		{name: "trivial raw", reflection: "meh", want: "Skipped trivial reflection."},
		{
			name:       "raw",
			reflection: "The goal went fine overall, but no structured output was produced.",
			want:       "Reflection saved (raw): The goal went fine overall, but no structured output was produced.",
			saved:      1,
		},
		{name: "trivial lesson", reflection: `{"outcome": "success", "lessons": "ok"}`, want: "Skipped trivial lesson."},
		{name: "backend fallback", reflection: "", want: "Skipped trivial lesson."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &script{reflection: tt.reflection}
			if tt.name == "backend fallback" {
				sc.err = errors.New("timeout")
			}
			f := newFixture(t, sc)

			assert.Equal(t, tt.want, f.s.reflect(context.Background(), goal))
			docs, err := f.ns.Memory.All(context.Background())
			require.NoError(t, err)
			assert.Len(t, docs, tt.saved)
		})
	}
}

func TestRun_AdvancesUntilCancelled(t *testing.T) {
	f := newFixture(t, &script{actions: writeAction, reflection: "ok"})
	f.setGoal(t, "write notes", "one", "two")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.s.Run(ctx, 5*time.Millisecond, 20*time.Millisecond) }()

	require.Eventually(t, func() bool {
		_, err := f.ns.State.Goal(context.Background())
		return errors.Is(err, state.ErrNoActiveGoal)
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestTick_WaitsForPipelineRun(t *testing.T) {
	f := newFixture(t, &script{})
	f.setGoal(t, "write notes", "draft notes", "review notes")

	entered := make(chan struct{})
	release := make(chan struct{})
	model := llmtest.NewFunc(func(messages []llms.MessageContent) (string, error) {
		text := llmtest.Text(messages)
		switch {
		case strings.Contains(text, "Classify the intent"):
			return "DIRECT", nil
		case strings.Contains(text, "TOOLS AVAILABLE"):
			return writeAction, nil
		}
		entered <- struct{}{}
		<-release
		return "Hello.", nil
	})
	pool := llm.NewWithModels(map[llm.Role]llms.Model{llm.General: model}, 5*time.Second)
	sb, err := tools.NewSandbox(f.ns.Workspace())
	require.NoError(t, err)
	r := tools.NewRegistry()
	tools.RegisterFiles(r, sb)
	tools.RegisterGoals(r)
	p := pipeline.New(f.ns, r, pool, pipeline.Options{AutoLearnMinLength: 10000})
	s := New(f.ns, r, pool)
	ctx := context.Background()

	runDone := make(chan pipeline.Result, 1)
	go func() { runDone <- p.Run(ctx, "hi", "console") }()
	<-entered

	tickDone := make(chan string, 1)
	go func() {
		out, _ := s.Tick(ctx)
		tickDone <- out
	}()
	select {
	case out := <-tickDone:
		t.Fatalf("tick ran while a request held the namespace: %s", out)
	case <-time.After(200 * time.Millisecond):
	}
	for _, step := range f.plan(t).Steps {
		assert.Equal(t, models.StepPending, step.Status)
	}

	close(release)
	assert.Equal(t, "Hello.", (<-runDone).Reply)
	select {
	case out := <-tickDone:
		assert.Equal(t, "write_file -> Successfully wrote to notes.txt", out)
	case <-time.After(5 * time.Second):
		t.Fatal("tick never ran")
	}
	p.Wait()
	assert.Equal(t, models.StepCompleted, f.plan(t).Steps[0].Status)
}
