package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/chains"
	langChainPrompt "github.com/tmc/langchaingo/prompts"
	"go-dross/internal/llm"
	"go-dross/pkg/data"
	"go-dross/pkg/models"
	"go-dross/pkg/prompts"
	"go-dross/pkg/template"
)

// FallbackReflection is returned when the backend cannot reflect on a goal.
const FallbackReflection = `{"outcome": "unknown", "lessons": "Reflection failed.", "what_worked": "", "what_failed": "", "key_facts": [], "suggested_tool": null}`

var NewActionPrompt = langChainPrompt.NewPromptTemplate(prompts.PlannerNewAction, []string{"Goal"})

type Handler struct {
	pool *llm.Pool
	plan chains.Chain
}

func New(pool *llm.Pool) *Handler {
	return &Handler{
		pool: pool,
		plan: chains.NewLLMChain(pool.Model(llm.Reasoning), NewActionPrompt),
	}
}

// Plan breaks goal into steps. When no usable plan comes back the goal itself
// becomes the only step.
func (h *Handler) Plan(ctx context.Context, goal string) ([]string, models.HandlerResult) {
	fallback := []string{"Execute: " + goal}

	ctx, cancel := h.pool.WithTimeout(ctx)
	defer cancel()
	completion, err := chains.Call(ctx, h.plan, map[string]any{"Goal": goal})
	if err != nil {
		return fallback, models.HandlerResult{Error: fmt.Errorf("call: %w", err)}
	}

	question, err := template.Parse(prompts.PlannerNewAction, struct{ Goal string }{goal})
	if err != nil {
		return fallback, models.HandlerResult{Error: fmt.Errorf("execute: %w", err)}
	}
	answer, _ := completion["text"].(string)
	res := models.HandlerResult{Question: question, Answer: answer}

	steps, err := data.ExtractList(answer)
	if err != nil {
		res.Error = fmt.Errorf("parse plan: %w", err)
		return fallback, res
	}
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		res.Error = fmt.Errorf("parse plan: %w", data.ErrNoJSON)
		return fallback, res
	}
	return out, res
}

type autonomyInput struct {
	GoalState string
	History   string
}

// Actions asks for the tool calls that advance goalState. A failed call yields
// no actions.
func (h *Handler) Actions(ctx context.Context, goalState, schemas, history string) (models.Actions, models.HandlerResult) {
	idle := models.Actions{Thought: "idle"}

	system, err := template.Parse(prompts.Autonomy, struct{ Tools string }{schemas})
	if err != nil {
		return idle, models.HandlerResult{Error: fmt.Errorf("execute: %w", err)}
	}
	question, err := template.Parse(prompts.AutonomyState, autonomyInput{GoalState: goalState, History: history})
	if err != nil {
		return idle, models.HandlerResult{Error: fmt.Errorf("execute: %w", err)}
	}

	answer, err := h.pool.Chat(ctx, llm.General, llm.System(system), llm.User(question))
	if err != nil {
		return idle, models.HandlerResult{Question: question, Error: fmt.Errorf("actions: %w", err)}
	}
	res := models.HandlerResult{Question: question, Answer: answer}

	var actions models.Actions
	if err := data.ExtractJSON(answer, &actions); err != nil {
		res.Error = fmt.Errorf("parse actions: %w", err)
		return idle, res
	}
	return actions, res
}

// Reflect returns the raw reflection on a finished goal.
func (h *Handler) Reflect(ctx context.Context, goalData string) models.HandlerResult {
	question, err := template.Parse(prompts.ReflectionGoal, struct{ GoalData string }{goalData})
	if err != nil {
		return models.HandlerResult{Answer: FallbackReflection, Error: fmt.Errorf("execute: %w", err)}
	}
	answer, err := h.pool.Chat(ctx, llm.Reasoning, llm.System(prompts.Reflection), llm.User(question))
	if err != nil {
		return models.HandlerResult{Question: question, Answer: FallbackReflection, Error: fmt.Errorf("reflect: %w", err)}
	}
	return models.HandlerResult{Question: question, Answer: data.StripFences(data.CleanOutput(answer))}
}
