package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go-dross/internal/agents/pipeline"
	"go-dross/internal/llm"
	"go-dross/internal/llm/llmtest"
	"go-dross/internal/memory"
	"go-dross/internal/namespace"
	"go-dross/internal/tools"
	"go-dross/pkg/models"
)

type fakeFleet struct {
	records []models.SubagentRecord
}

func (f *fakeFleet) Spawn(context.Context, string) (string, error) { return "deadbeef", nil }

func (f *fakeFleet) Status(_ context.Context, id string) (models.SubagentRecord, bool, error) {
	for _, r := range f.records {
		if r.ID == id {
			return r, true, nil
		}
	}
	return models.SubagentRecord{}, false, nil
}

func (f *fakeFleet) List(context.Context) ([]models.SubagentRecord, error) {
	return f.records, nil
}

type fixture struct {
	ns       *namespace.Namespace
	activity *Activity
	srv      *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ns, err := namespace.Open(namespace.Config{
		Name:     "main",
		DataDir:  filepath.Join(t.TempDir(), "data"),
		Embedder: memory.NewHashEmbedder(1 << 14),
		Memory:   memory.DefaultOptions(),
	})
	require.NoError(t, err)

	activity := NewActivity(0)
	r := tools.NewRegistry(tools.WithCallback(activity.ToolStarted))
	sb, err := tools.NewSandbox(ns.Workspace())
	require.NoError(t, err)
	tools.RegisterFiles(r, sb)
	tools.RegisterGoals(r)
	tools.RegisterSystem(r, "")

	model := llmtest.NewFunc(func(messages []llms.MessageContent) (string, error) {
		if strings.Contains(llmtest.Text(messages), "Classify the intent") {
			return "DIRECT", nil
		}
		return "Hello from dross.", nil
	})
	pool := llm.NewWithModels(map[llm.Role]llms.Model{llm.General: model}, time.Second)
	p := pipeline.New(ns, r, pool, pipeline.Options{AutoLearnMinLength: 100000})

	start := time.Now().Add(-time.Minute)
	end := time.Now()
	result := "done"
	fleet := &fakeFleet{records: []models.SubagentRecord{{
		ID: "abc12345", Goal: "count", Status: models.Completed, Result: &result,
		StartTime: start, EndTime: &end, StepsTaken: 2, RuntimeSeconds: 60,
	}}}

	s := New(":0", Deps{Namespace: ns, Pipeline: p, Registry: r, Pool: pool, Fleet: fleet, Activity: activity})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		p.Wait()
		ns.Close()
	})
	return &fixture{ns: ns, activity: activity, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestChat(t *testing.T) {
	f := newFixture(t)

	var res pipeline.Result
	code := f.do(t, http.MethodPost, "/api/chat", chatRequest{Message: "hi"}, &res)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.Direct, res.Intent)
	assert.Equal(t, "Hello from dross.", res.Reply)

	var events map[string][]Event
	f.do(t, http.MethodGet, "/api/activity", nil, &events)
	types := make([]string, 0)
	for _, e := range events["events"] {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{EventStatus, EventLog, EventResponse, EventStatus, EventRefreshStatus}, types)

	var bad errorResponse
	code = f.do(t, http.MethodPost, "/api/chat", map[string]string{}, &bad)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "unable to parse body", bad.Error)
}

func TestGoalLifecycle(t *testing.T) {
	f := newFixture(t)

	var msg statusMessage
	code := f.do(t, http.MethodPost, "/api/goal", goalRequest{Description: "ship it"}, &msg)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Goal set: ship it", msg.Status)

	var plan models.Plan
	code = f.do(t, http.MethodPost, "/api/plan", planRequest{Steps: []string{"build", "deploy"}}, &plan)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, plan.Steps, 2)

	var status statusResponse
	f.do(t, http.MethodGet, "/api/status", nil, &status)
	require.NotNil(t, status.Goal)
	assert.Equal(t, "ship it", status.Goal.Description)
	require.NotNil(t, status.Plan)
	assert.Equal(t, "deploy", status.Plan.Steps[1].Description)
	require.Len(t, status.Subagents, 1)
	assert.Equal(t, "abc12345", status.Subagents[0].ID)

	code = f.do(t, http.MethodPost, "/api/goal/complete", nil, &msg)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Goal marked as completed.", msg.Status)

	var e errorResponse
	code = f.do(t, http.MethodPost, "/api/goal/complete", nil, &e)
	assert.Equal(t, http.StatusConflict, code)
}

func TestMemoryGraph(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ns.Memory.Save(ctx, "The operator lives in Lisbon and works nights.", map[string]string{"type": memory.TypeAutoLearned}, false)
	require.NoError(t, err)
	_, err = f.ns.Memory.Save(ctx, "Short fact", map[string]string{"type": memory.TypeEpisodic}, false)
	require.NoError(t, err)

	var g struct {
		Nodes []graphNode   `json:"nodes"`
		Edges []memory.Edge `json:"edges"`
	}
	code := f.do(t, http.MethodGet, "/api/memory/graph", nil, &g)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, g.Nodes, 2)
	assert.NotNil(t, g.Edges)
	labels := map[string]graphNode{}
	for _, n := range g.Nodes {
		labels[n.Label] = n
	}
	assert.Equal(t, "#ffd700", labels["The operator lives i..."].Color)
	assert.Equal(t, "#bc13fe", labels["Short fact"].Color)

	var deleted struct {
		Deleted int `json:"deleted"`
	}
	code = f.do(t, http.MethodDelete, "/api/memory?contains=Lisbon", nil, &deleted)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, deleted.Deleted)

	code = f.do(t, http.MethodDelete, "/api/memory", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMemoryWrites_WaitForNamespace(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{name: "learn", method: http.MethodPost, path: "/api/learn", body: `{"input": "hi", "reply": "hello", "feedback": "good"}`},
		{name: "forget", method: http.MethodDelete, path: "/api/memory?contains=Lisbon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req, err := http.NewRequest(tt.method, f.srv.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)

			f.ns.Lock()
			done := make(chan int, 1)
			go func() {
				resp, err := http.DefaultClient.Do(req)
				if err != nil {
					done <- 0
					return
				}
				resp.Body.Close()
				done <- resp.StatusCode
			}()
			select {
			case <-done:
				f.ns.Unlock()
				t.Fatal("memory changed while the namespace was locked")
			case <-time.After(200 * time.Millisecond):
			}
			f.ns.Unlock()

			select {
			case code := <-done:
				assert.Equal(t, http.StatusOK, code)
			case <-time.After(5 * time.Second):
				t.Fatal("request never completed")
			}
		})
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ns.State.SetGoal(ctx, "forget me", false)
	require.NoError(t, err)
	_, err = f.ns.Memory.Save(ctx, "Something worth remembering.", nil, false)
	require.NoError(t, err)
	require.NoError(t, f.ns.Journal.Write("kept across resets"))

	code := f.do(t, http.MethodPost, "/api/reset", nil, nil)
	require.Equal(t, http.StatusOK, code)

	var status statusResponse
	f.do(t, http.MethodGet, "/api/status", nil, &status)
	assert.Nil(t, status.Goal)
	assert.Zero(t, status.MemoryCount)

	var journal map[string][]map[string]any
	f.do(t, http.MethodGet, "/api/journal", nil, &journal)
	require.Len(t, journal["entries"], 1)
	assert.Equal(t, "kept across resets", journal["entries"][0]["entry"])
}

func TestToolsAndFiles(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.ns.Workspace(), "notes.txt"), []byte("hello"), 0644))

	var exported map[string][]tools.Export
	f.do(t, http.MethodGet, "/api/tools", nil, &exported)
	names := make([]string, 0)
	for _, e := range exported["tools"] {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "set_goal")
	assert.Contains(t, names, "get_system_info")

	var files map[string][]fileInfo
	f.do(t, http.MethodGet, "/api/files", nil, &files)
	assert.Contains(t, files["files"], fileInfo{Path: "notes.txt", Size: 5})

	var info map[string]any
	code := f.do(t, http.MethodGet, "/api/system_info", nil, &info)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, info["os"])
}

func TestSubagents(t *testing.T) {
	f := newFixture(t)

	var rec models.SubagentRecord
	code := f.do(t, http.MethodGet, "/api/subagents/abc12345", nil, &rec)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.Completed, rec.Status)
	assert.Equal(t, 60.0, rec.RuntimeSeconds)

	code = f.do(t, http.MethodGet, "/api/subagents/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestWebsocket(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello?")))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var e Event
		require.NoError(t, conn.ReadJSON(&e))
		if e.Type == EventResponse {
			assert.Equal(t, "Hello from dross.", e.Content)
			return
		}
	}
}
