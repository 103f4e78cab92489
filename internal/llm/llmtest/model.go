// Package llmtest provides a scripted llms.Model for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

var ErrExhausted = errors.New("llmtest: no scripted response left")

// Model replies with scripted responses in order. When Respond is set it is
// used instead of the script.
type Model struct {
	mu        sync.Mutex
	responses []string
	calls     [][]llms.MessageContent
	Err       error
	Respond   func(messages []llms.MessageContent) (string, error)
}

func New(responses ...string) *Model {
	return &Model{responses: responses}
}

func NewFunc(fn func(messages []llms.MessageContent) (string, error)) *Model {
	return &Model{Respond: fn}
}

func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, messages)
	if m.Err != nil {
		err := m.Err
		m.mu.Unlock()
		return nil, err
	}
	respond := m.Respond
	var text string
	if respond == nil {
		if len(m.responses) == 0 {
			m.mu.Unlock()
			return nil, ErrExhausted
		}
		text = m.responses[0]
		m.responses = m.responses[1:]
	}
	m.mu.Unlock()

	if respond != nil {
		var err error
		text, err = respond(messages)
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}, nil
}

func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls returns the message lists received so far.
func (m *Model) Calls() [][]llms.MessageContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]llms.MessageContent, len(m.calls))
	copy(out, m.calls)
	return out
}

// Text joins the text parts of messages, for assertions.
func Text(messages []llms.MessageContent) string {
	var b strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if t, ok := part.(llms.TextContent); ok {
				b.WriteString(t.Text)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}
