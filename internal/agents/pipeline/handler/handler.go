package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	langChainPrompt "github.com/tmc/langchaingo/prompts"
	"go-dross/internal/llm"
	"go-dross/pkg/data"
	"go-dross/pkg/memory/buffer"
	"go-dross/pkg/models"
	"go-dross/pkg/prompts"
	"go-dross/pkg/template"
)

// Fallback answers used when the backend cannot be reached.
const (
	FallbackReasoning = "Unable to perform deep reasoning."
	FallbackTool      = "null"
	FallbackReply     = "I can't reach my language backend right now. Please try again shortly."
)

var SummarizePrompt = langChainPrompt.NewPromptTemplate(prompts.Summarize, []string{"Conversation"})

type Handler struct {
	pool      *llm.Pool
	summarize chains.Chain
}

func New(pool *llm.Pool) *Handler {
	return &Handler{
		pool:      pool,
		summarize: chains.NewLLMChain(pool.Model(llm.Reasoning), SummarizePrompt),
	}
}

// Route classifies input. Any failure routes to a direct answer.
func (h *Handler) Route(ctx context.Context, input string) (models.Intent, error) {
	answer, err := h.pool.Chat(ctx, llm.General, llm.System(prompts.Route), llm.User(input))
	if err != nil {
		return models.Direct, fmt.Errorf("route: %w", err)
	}
	category := strings.ToUpper(data.CleanOutput(answer))
	switch {
	case strings.Contains(category, string(models.Tool)):
		return models.Tool, nil
	case strings.Contains(category, string(models.Reason)):
		return models.Reason, nil
	}
	return models.Direct, nil
}

type reasoningInput struct {
	Context string
	Task    string
}

func (h *Handler) Reason(ctx context.Context, input, gathered string) models.HandlerResult {
	question, err := template.Parse(prompts.ReasoningTask, reasoningInput{Context: gathered, Task: input})
	if err != nil {
		return models.HandlerResult{Answer: FallbackReasoning, Error: fmt.Errorf("execute: %w", err)}
	}
	answer, err := h.pool.Chat(ctx, llm.Reasoning, llm.System(prompts.Reasoning), llm.User(question))
	if err != nil {
		return models.HandlerResult{Question: question, Answer: FallbackReasoning, Error: fmt.Errorf("reason: %w", err)}
	}
	return models.HandlerResult{Question: question, Answer: answer}
}

func (h *Handler) SelectTool(ctx context.Context, input, schemas string) models.HandlerResult {
	system, err := template.Parse(prompts.ToolSelection, struct{ Tools string }{schemas})
	if err != nil {
		return models.HandlerResult{Answer: FallbackTool, Error: fmt.Errorf("execute: %w", err)}
	}
	answer, err := h.pool.Chat(ctx, llm.Tool, llm.System(system), llm.User(input))
	if err != nil {
		return models.HandlerResult{Question: input, Answer: FallbackTool, Error: fmt.Errorf("select tool: %w", err)}
	}
	return models.HandlerResult{Question: input, Answer: answer}
}

// Synthesize writes the final reply from the gathered context and the recent turns.
func (h *Handler) Synthesize(ctx context.Context, input, gathered string, history []buffer.Memory) models.HandlerResult {
	messages := make([]llms.MessageContent, 0, len(history)+3)
	messages = append(messages, llm.System(prompts.General))
	for _, turn := range history {
		if turn.Role == buffer.RoleAssistant {
			messages = append(messages, llm.Assistant(turn.Content))
		} else {
			messages = append(messages, llm.User(turn.Content))
		}
	}
	if gathered != "" {
		c, err := template.Parse(prompts.GeneralContext, struct{ Context string }{gathered})
		if err == nil {
			messages = append(messages, llm.System(c))
		}
	}
	messages = append(messages, llm.User(input))

	answer, err := h.pool.Chat(ctx, llm.General, messages...)
	if err != nil {
		return models.HandlerResult{Question: input, Answer: FallbackReply, Error: fmt.Errorf("synthesize: %w", err)}
	}
	return models.HandlerResult{Question: input, Answer: answer}
}

// ExtractInsight returns the facts and relationships found in an interaction,
// or an empty insight when none can be parsed.
func (h *Handler) ExtractInsight(ctx context.Context, interaction string) (models.Insight, error) {
	answer, err := h.pool.Chat(ctx, llm.Reasoning, llm.System(prompts.Insight), llm.User(interaction))
	if err != nil {
		return models.Insight{}, fmt.Errorf("extract insight: %w", err)
	}
	var insight models.Insight
	if err := data.ExtractJSON(answer, &insight); err != nil {
		return models.Insight{}, fmt.Errorf("parse insight: %w", err)
	}
	return insight, nil
}

func (h *Handler) Summarize(ctx context.Context, conversation string) (string, error) {
	ctx, cancel := h.pool.WithTimeout(ctx)
	defer cancel()
	completion, err := chains.Call(ctx, h.summarize, map[string]any{"Conversation": conversation})
	if err != nil {
		return "", fmt.Errorf("call: %w", err)
	}
	text, _ := completion["text"].(string)
	return data.CleanOutput(text), nil
}
