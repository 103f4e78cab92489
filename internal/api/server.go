// Package api exposes one namespace over HTTP: chat, goal and plan state,
// memory, journal, subagents and a live activity feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"go-dross/internal/agents/pipeline"
	"go-dross/internal/llm"
	"go-dross/internal/memory"
	"go-dross/internal/namespace"
	"go-dross/internal/state"
	"go-dross/internal/tools"
	"go-dross/pkg/logger"
	"go-dross/pkg/models"
)

const labelLength = 20

type chatRequest struct {
	Message string `json:"message"`
}

type goalRequest struct {
	Description string `json:"description"`
	Autonomous  bool   `json:"autonomous"`
}

type planRequest struct {
	Steps []string `json:"steps"`
}

type learnRequest struct {
	Input    string `json:"input"`
	Reply    string `json:"reply"`
	Feedback string `json:"feedback"`
}

type statusResponse struct {
	Goal         *models.Goal            `json:"goal"`
	Plan         *models.Plan            `json:"plan"`
	Stack        []models.Goal           `json:"stack"`
	MemoryCount  int                     `json:"memory_count"`
	OllamaHealth map[string]bool         `json:"ollama_health"`
	Subagents    []models.SubagentRecord `json:"subagents"`
	Uptime       string                  `json:"uptime"`
}

type fileInfo struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type graphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Title string `json:"title"`
	Group string `json:"group"`
	Color string `json:"color"`
	Shape string `json:"shape"`
}

type statusMessage struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Deps are the components the server reads and drives. Pool and Fleet are
// optional.
type Deps struct {
	Namespace *namespace.Namespace
	Pipeline  *pipeline.Pipeline
	Registry  *tools.Registry
	Pool      *llm.Pool
	Fleet     tools.Fleet
	Activity  *Activity
}

type Server struct {
	deps    Deps
	started time.Time
	server  *http.Server
}

func New(addr string, deps Deps) *Server {
	s := &Server{deps: deps, started: time.Now()}
	if s.deps.Activity == nil {
		s.deps.Activity = NewActivity(0)
	}
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(logMiddleware())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Post("/chat", s.chat)
		r.Post("/learn", s.learn)
		r.Post("/goal", s.setGoal)
		r.Post("/goal/complete", s.completeGoal)
		r.Post("/plan", s.setPlan)
		r.Get("/tools", s.listTools)
		r.Get("/files", s.files)
		r.Get("/system_info", s.systemInfo)
		r.Get("/memory/graph", s.graph)
		r.Delete("/memory", s.forget)
		r.Post("/memory/clear", s.clearMemory)
		r.Post("/reset", s.reset)
		r.Get("/journal", s.journal)
		r.Get("/activity", s.activity)
		r.Get("/subagents", s.subagents)
		r.Get("/subagents/{id}", s.subagent)
	})
	r.Get("/ws", s.websocket)
	return r
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ns := s.deps.Namespace
	res := statusResponse{
		Stack:        []models.Goal{},
		OllamaHealth: map[string]bool{},
		Subagents:    []models.SubagentRecord{},
		Uptime:       time.Since(s.started).Round(time.Second).String(),
	}

	goal, found, err := ns.State.CurrentGoal(ctx)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	if found {
		res.Goal = &goal
	}
	plan, err := ns.State.Plan(ctx)
	switch {
	case err == nil:
		res.Plan = &plan
	case !errors.Is(err, state.ErrNoPlan):
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	if stack, err := ns.State.Stack(ctx); err == nil {
		res.Stack = stack
	}
	if docs, err := ns.Memory.All(ctx); err == nil {
		res.MemoryCount = len(docs)
	}
	if s.deps.Pool != nil {
		res.OllamaHealth = s.deps.Pool.Health(ctx)
	}
	if s.deps.Fleet != nil {
		if records, err := s.deps.Fleet.List(ctx); err == nil {
			res.Subagents = records
		} else {
			hlog.FromRequest(r).Warn().Err(err).Msg("unable to list subagents")
		}
	}
	render.JSON(w, r, res)
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	req := chatRequest{}
	if err := unmarshalRequestBody(r, &req); err != nil || req.Message == "" {
		s.badRequest(w, r, "unable to parse body")
		return
	}
	render.JSON(w, r, s.Converse(r.Context(), req.Message, "api"))
}

// Converse runs one request through the pipeline and reports it on the
// activity feed.
func (s *Server) Converse(ctx context.Context, message, source string) pipeline.Result {
	a := s.deps.Activity
	a.Publish(Event{Type: EventStatus, Status: "thinking"})
	a.Log(fmt.Sprintf("%s: %s", source, message))

	res := s.deps.Pipeline.Run(ctx, message, source)

	a.Publish(Event{Type: EventResponse, Content: res.Reply})
	a.Publish(Event{Type: EventStatus, Status: "idle"})
	a.Publish(Event{Type: EventRefreshStatus})
	return res
}

func (s *Server) learn(w http.ResponseWriter, r *http.Request) {
	req := learnRequest{}
	if err := unmarshalRequestBody(r, &req); err != nil || req.Feedback == "" {
		s.badRequest(w, r, "unable to parse body")
		return
	}
	ns := s.deps.Namespace
	ns.Lock()
	msg, err := s.deps.Pipeline.Learn(r.Context(), req.Input, req.Reply, req.Feedback)
	ns.Unlock()
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	render.JSON(w, r, statusMessage{Status: msg})
}

func (s *Server) setGoal(w http.ResponseWriter, r *http.Request) {
	req := goalRequest{}
	if err := unmarshalRequestBody(r, &req); err != nil || req.Description == "" {
		s.badRequest(w, r, "unable to parse body")
		return
	}
	ns := s.deps.Namespace
	ns.Lock()
	msg, err := ns.State.SetGoal(r.Context(), req.Description, req.Autonomous)
	ns.Unlock()
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	s.deps.Activity.Publish(Event{Type: EventRefreshStatus})
	render.JSON(w, r, statusMessage{Status: msg})
}

func (s *Server) completeGoal(w http.ResponseWriter, r *http.Request) {
	ns := s.deps.Namespace
	ns.Lock()
	msg, err := ns.State.CompleteGoal(r.Context(), "Completed by the operator.")
	ns.Unlock()
	if errors.Is(err, state.ErrNoActiveGoal) {
		s.fail(w, r, http.StatusConflict, err)
		return
	}
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	s.deps.Activity.Publish(Event{Type: EventRefreshStatus})
	render.JSON(w, r, statusMessage{Status: msg})
}

func (s *Server) setPlan(w http.ResponseWriter, r *http.Request) {
	req := planRequest{}
	if err := unmarshalRequestBody(r, &req); err != nil || len(req.Steps) == 0 {
		s.badRequest(w, r, "unable to parse body")
		return
	}
	ns := s.deps.Namespace
	ns.Lock()
	plan, err := ns.State.SetPlan(r.Context(), req.Steps)
	ns.Unlock()
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	s.deps.Activity.Publish(Event{Type: EventRefreshStatus})
	render.JSON(w, r, plan)
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string][]tools.Export{"tools": s.deps.Registry.Schemas()})
}

func (s *Server) files(w http.ResponseWriter, r *http.Request) {
	root := s.deps.Namespace.Workspace()
	files := make([]fileInfo, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		files = append(files, fileInfo{Path: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	render.JSON(w, r, map[string][]fileInfo{"files": files})
}

func (s *Server) systemInfo(w http.ResponseWriter, r *http.Request) {
	out := s.deps.Registry.Execute(r.Context(), "get_system_info", map[string]any{}, s.deps.Namespace.Env())
	var info map[string]any
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		s.fail(w, r, http.StatusInternalServerError, errors.New(out))
		return
	}
	render.JSON(w, r, info)
}

func (s *Server) graph(w http.ResponseWriter, r *http.Request) {
	g, err := s.deps.Namespace.Memory.Graph(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("unable to read memory graph")
		g = memory.Graph{}
	}
	nodes := make([]graphNode, 0, len(g.Nodes))
	for _, d := range g.Nodes {
		nodes = append(nodes, newGraphNode(d))
	}
	edges := g.Edges
	if edges == nil {
		edges = []memory.Edge{}
	}
	render.JSON(w, r, struct {
		Nodes []graphNode   `json:"nodes"`
		Edges []memory.Edge `json:"edges"`
	}{nodes, edges})
}

func newGraphNode(d memory.Document) graphNode {
	label := d.Content
	if runes := []rune(label); len(runes) > labelLength {
		label = string(runes[:labelLength]) + "..."
	}
	typ := d.Metadata["type"]
	color := "#00f3ff"
	switch typ {
	case memory.TypeEpisodic:
		color = "#bc13fe"
	case memory.TypeAutoLearned:
		color = "#ffd700"
	case memory.TypeAtomicFact:
		color = "#00ff88"
	case memory.TypeSelfImprovement, memory.TypeFeedbackLearning:
		color = "#ff6b35"
	}
	return graphNode{ID: d.ID, Label: label, Title: d.Content, Group: typ, Color: color, Shape: "dot"}
}

func (s *Server) forget(w http.ResponseWriter, r *http.Request) {
	contains := r.URL.Query().Get("contains")
	if contains == "" {
		s.badRequest(w, r, "missing contains parameter")
		return
	}
	ns := s.deps.Namespace
	ns.Lock()
	n, err := ns.Memory.DeleteContaining(r.Context(), contains)
	ns.Unlock()
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	render.JSON(w, r, struct {
		Deleted int `json:"deleted"`
	}{n})
}

func (s *Server) clearMemory(w http.ResponseWriter, r *http.Request) {
	ns := s.deps.Namespace
	ns.Lock()
	err := ns.Memory.Wipe(r.Context())
	ns.Unlock()
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	s.deps.Activity.Publish(Event{Type: EventRefreshStatus})
	render.JSON(w, r, statusMessage{Status: "Memory wiped."})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Namespace.Reset(r.Context()); err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	s.deps.Activity.Log("SYSTEM: Reset complete.")
	s.deps.Activity.Publish(Event{Type: EventRefreshStatus})
	render.JSON(w, r, statusMessage{Status: "Reset complete. Memory, goal, plan and goal stack cleared."})
}

func (s *Server) journal(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Namespace.Journal.Read(queryInt(r, "limit", 0))
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	render.JSON(w, r, map[string][]state.JournalEntry{"entries": entries})
}

func (s *Server) activity(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string][]Event{"events": s.deps.Activity.Recent(queryInt(r, "limit", 50))})
}

func (s *Server) subagents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Fleet == nil {
		render.JSON(w, r, map[string][]models.SubagentRecord{"subagents": {}})
		return
	}
	records, err := s.deps.Fleet.List(r.Context())
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	render.JSON(w, r, map[string][]models.SubagentRecord{"subagents": records})
}

func (s *Server) subagent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.deps.Fleet == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	rec, found, err := s.deps.Fleet.Status(r.Context(), id)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNotFound)
		log.Debug().Str(logger.SubagentIDField, id).Msg("cannot find subagent")
		return
	}
	render.JSON(w, r, rec)
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server starting")
	err := s.server.ListenAndServe()
	if err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	return nil
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	hlog.FromRequest(r).Debug().Msg(msg)
	w.WriteHeader(http.StatusBadRequest)
	render.JSON(w, r, errorResponse{Error: msg})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	w.WriteHeader(status)
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

func logMiddleware() func(http.Handler) http.Handler {
	c := alice.New()
	c = c.Append(hlog.NewHandler(log.Logger))
	c = c.Append(hlog.RemoteAddrHandler("ip"))
	c = c.Append(hlog.UserAgentHandler("agent"))
	c = c.Append(hlog.RefererHandler("referer"))
	c = c.Append(hlog.RequestIDHandler("req_id", "Request-Id"))
	c = c.Append(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("verb", r.Method).
			Stringer("url", r.URL).
			Int("size", size).
			Int("status", status).
			Int64("duration", duration.Milliseconds()).
			Msg("REQ")
	}))

	return c.Then
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

func unmarshalRequestBody(req *http.Request, output interface{}) error {
	if req.Body == nil {
		return errors.New("invalid body in request")
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	if err = req.Body.Close(); err != nil {
		return err
	}
	if err = json.Unmarshal(body, &output); err != nil {
		return err
	}

	return nil
}
