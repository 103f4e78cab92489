// Package pipeline answers one request at a time: it routes the intent, gathers
// context, optionally runs a tool and synthesizes the reply, then learns from
// the exchange in the background.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go-dross/internal/agents/pipeline/handler"
	"go-dross/internal/llm"
	"go-dross/internal/memory"
	"go-dross/internal/namespace"
	"go-dross/internal/tools"
	"go-dross/pkg/data"
	"go-dross/pkg/logger"
	"go-dross/pkg/memory/buffer"
	"go-dross/pkg/models"
)

const minEpisodeLength = 40

type Options struct {
	// AutoLearnMinLength is the combined input and reply length that triggers
	// insight extraction.
	AutoLearnMinLength int
}

// Result describes one answered request.
type Result struct {
	Intent     models.Intent `json:"intent"`
	Reasoning  string        `json:"reasoning,omitempty"`
	ToolName   string        `json:"tool_name,omitempty"`
	ToolResult string        `json:"tool_result,omitempty"`
	Mission    bool          `json:"mission"`
	Reply      string        `json:"reply"`
}

type Pipeline struct {
	ns       *namespace.Namespace
	registry *tools.Registry
	handler  *handler.Handler
	opts     Options
	learning sync.WaitGroup
	l        zerolog.Logger
}

func New(ns *namespace.Namespace, registry *tools.Registry, pool *llm.Pool, opts Options) *Pipeline {
	return &Pipeline{
		ns:       ns,
		registry: registry,
		handler:  handler.New(pool),
		opts:     opts,
		l:        log.With().Str(logger.NamespaceField, ns.Name()).Str(logger.AgentNameField, "pipeline").Logger(),
	}
}

// Run answers input. It holds the namespace lock for the whole request.
func (p *Pipeline) Run(ctx context.Context, input, source string) Result {
	p.ns.Lock()
	defer p.ns.Unlock()

	l := p.l.With().Str(logger.SourceField, source).Logger()
	longTerm := p.ns.Memory.Retrieve(ctx, input)
	history := p.ns.Memory.ShortTerm()

	intent, err := p.handler.Route(ctx, input)
	if err != nil {
		l.Warn().Err(err).Msg("routing failed, answering directly")
	}
	res := Result{Intent: intent}
	l = l.With().Str(logger.IntentField, string(intent)).Logger()
	l.Info().Msg("handling request")

	var environment string
	if intent == models.Reason || intent == models.Tool {
		environment = p.ns.Snapshot()
	}

	switch intent {
	case models.Reason:
		gathered := fmt.Sprintf("%s\nLong-term Memory: %s\nShort-term History: %s", environment, longTerm, transcript(history))
		hRes := p.handler.Reason(ctx, input, gathered)
		if hRes.Error != nil {
			l.Warn().Err(hRes.Error).Msg("reasoning failed")
		}
		res.Reasoning = hRes.Answer
		res.Mission, res.Reasoning = p.mission(ctx, input, hRes.Answer)
	case models.Tool:
		hRes := p.handler.SelectTool(ctx, environment+"\n"+input, p.registry.SchemasJSON())
		if hRes.Error != nil {
			l.Warn().Err(hRes.Error).Msg("tool selection failed")
		}
		name, args, ok := parseToolCall(hRes.Answer)
		if ok {
			l.Info().Str(logger.ToolField, name).Msg("executing tool")
			res.ToolName = name
			res.ToolResult = p.registry.Execute(ctx, name, args, p.ns.Env())
		}
	}

	parts := make([]string, 0, 3)
	if res.Reasoning != "" {
		parts = append(parts, "[Reasoning Analysis]\n"+res.Reasoning)
	}
	if res.ToolResult != "" {
		parts = append(parts, "[Tool Result]\n"+res.ToolResult)
	}
	if longTerm != "" {
		parts = append(parts, "[Relevant Memories]\n"+longTerm)
	}
	gathered := strings.Join(parts, "\n\n")
	if environment != "" {
		gathered = environment + "\n\n" + gathered
	}

	hRes := p.handler.Synthesize(ctx, input, gathered, history)
	if hRes.Error != nil {
		l.Error().Err(hRes.Error).Msg("synthesis failed")
	}
	res.Reply = data.CleanOutput(hRes.Answer)

	p.ns.Memory.AddShortTerm(buffer.RoleUser, input, source)
	p.ns.Memory.AddShortTerm(buffer.RoleAssistant, res.Reply, source)

	fence := p.ns.Memory.Fence()
	p.learning.Add(1)
	go func() {
		defer p.learning.Done()
		p.learn(context.WithoutCancel(ctx), fence, input, res.Reply)
	}()
	return res
}

// mission turns a reasoning answer that asks for a mission into an autonomous goal.
func (p *Pipeline) mission(ctx context.Context, input, reasoning string) (bool, string) {
	var out struct {
		RequiresMission bool   `json:"requires_mission"`
		Thought         string `json:"thought"`
	}
	if err := data.ExtractJSON(reasoning, &out); err != nil || !out.RequiresMission {
		return false, reasoning
	}
	ack := p.registry.Execute(ctx, "set_goal", map[string]any{"description": input, "is_autonomous": true}, p.ns.Env())
	p.l.Info().Str("ack", ack).Msg("reasoning requested a mission")
	if out.Thought != "" {
		return true, out.Thought
	}
	return true, reasoning
}

// parseToolCall accepts the tool name under tool_name or name and the arguments
// under tool_args, arguments or args.
func parseToolCall(answer string) (string, map[string]any, bool) {
	var call map[string]any
	if err := data.ExtractJSON(answer, &call); err != nil || call == nil {
		return "", nil, false
	}
	name, _ := call["tool_name"].(string)
	if name == "" {
		name, _ = call["name"].(string)
	}
	if name == "" {
		return "", nil, false
	}
	args := map[string]any{}
	for _, key := range []string{"tool_args", "arguments", "args"} {
		if a, ok := call[key].(map[string]any); ok && len(a) > 0 {
			args = a
			break
		}
	}
	return name, args, true
}

// Learn stores explicit feedback about an exchange.
func (p *Pipeline) Learn(ctx context.Context, input, reply, feedback string) (string, error) {
	content := fmt.Sprintf("User: %s\nAssistant: %s\nUser Feedback: %s", input, reply, feedback)
	_, err := p.ns.Memory.Save(ctx, content, map[string]string{"type": memory.TypeFeedbackLearning, "rating": "positive"}, true)
	if err != nil {
		return "", err
	}
	return "Insight saved to long-term memory.", nil
}

// Wait blocks until background learning of earlier requests has finished.
func (p *Pipeline) Wait() {
	p.learning.Wait()
}

// learn writes through fence, so nothing learned from a conversation survives
// a reset that happened while learning was in flight.
func (p *Pipeline) learn(ctx context.Context, fence memory.Fence, input, reply string) {
	if len(input)+len(reply) >= p.opts.AutoLearnMinLength {
		p.extractInsight(ctx, fence, input, reply)
	}
	p.consolidate(ctx, fence)
}

func (p *Pipeline) extractInsight(ctx context.Context, fence memory.Fence, input, reply string) {
	insight, err := p.handler.ExtractInsight(ctx, fmt.Sprintf("User: %s\nAssistant: %s", input, reply))
	if err != nil {
		p.l.Warn().Err(err).Msg("auto-learning failed")
		return
	}

	byText := make(map[string]string)
	byIndex := make([]string, 0, len(insight.Facts))
	for _, raw := range insight.Facts {
		fact := factText(raw)
		if strings.TrimSpace(fact) == "" {
			continue
		}
		id, err := fence.Save(ctx, fact, map[string]string{"type": memory.TypeAutoLearned}, true)
		if errors.Is(err, memory.ErrWiped) {
			p.l.Debug().Msg("memory wiped, dropping learned facts")
			return
		}
		if err != nil {
			p.l.Warn().Err(err).Msg("unable to save fact")
			continue
		}
		byText[fact] = id
		byIndex = append(byIndex, id)
		p.l.Debug().Str("fact", fact).Msg("learned fact")
	}

	resolve := func(ref any) string {
		switch r := ref.(type) {
		case string:
			return byText[r]
		case float64:
			if i := int(r); i >= 0 && i < len(byIndex) {
				return byIndex[i]
			}
		}
		return ""
	}
	for _, rel := range insight.Relationships {
		sid, tid := resolve(rel.Source), resolve(rel.Target)
		if sid != "" && tid != "" {
			fence.SaveRelationship(ctx, sid, tid, rel.Type)
		}
	}
}

// consolidate summarizes pruned short-term turns into an episodic memory.
func (p *Pipeline) consolidate(ctx context.Context, fence memory.Fence) {
	chunk, ok := p.ns.Memory.PruneShortTerm()
	if !ok {
		return
	}
	summary, err := p.handler.Summarize(ctx, chunk)
	if err != nil {
		p.l.Warn().Err(err).Msg("episodic summary failed")
		return
	}
	if len(strings.TrimSpace(summary)) < minEpisodeLength {
		p.l.Debug().Str("summary", summary).Msg("skipping trivial episodic summary")
		return
	}
	if _, err := fence.Save(ctx, summary, map[string]string{"type": memory.TypeEpisodic}, true); err != nil {
		p.l.Warn().Err(err).Msg("unable to save episode")
	}
}

// factText renders a fact given either as a sentence or as an object, whose
// fields are flattened into "key: value" pairs.
func factText(raw any) string {
	switch f := raw.(type) {
	case string:
		return f
	case map[string]any:
		return data.Flatten(f)
	}
	return ""
}

func transcript(history []buffer.Memory) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}
