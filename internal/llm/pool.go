// Package llm pools the inference backends used by the agents.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go-dross/pkg/logger"
)

type Role string

const (
	Reasoning Role = "reasoning"
	Tool      Role = "tool"
	General   Role = "general"
)

// Roles in host assignment order.
var Roles = []Role{Reasoning, Tool, General}

var ErrEmptyResponse = errors.New("empty response")

const healthTimeout = 3 * time.Second

type Options struct {
	Hosts          []string
	NumCtx         int
	Timeout        time.Duration
	Models         map[Role]string
	EmbeddingModel string
}

// Pool maps every role to a model bound to one backend host.
type Pool struct {
	models   map[Role]llms.Model
	names    map[Role]string
	hosts    []string
	timeout  time.Duration
	embedder embeddings.Embedder
	client   *http.Client
}

// New connects one Ollama client per role. With fewer than three hosts the
// first host serves the missing roles.
func New(opts Options) (*Pool, error) {
	hosts := make([]string, 0, len(opts.Hosts))
	for _, h := range opts.Hosts {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	if len(hosts) == 0 {
		return nil, errors.New("no inference hosts configured")
	}
	if len(hosts) < len(Roles) {
		log.Warn().Strs("hosts", hosts).Msgf("only %d inference host(s) configured for %d roles, reusing %s", len(hosts), len(Roles), hosts[0])
	}
	for len(hosts) < len(Roles) {
		hosts = append(hosts, hosts[0])
	}

	p := &Pool{
		models:  make(map[Role]llms.Model, len(Roles)),
		names:   make(map[Role]string, len(Roles)),
		timeout: opts.Timeout,
		client:  &http.Client{Timeout: healthTimeout},
	}
	for i, role := range Roles {
		name := opts.Models[role]
		if name == "" {
			return nil, fmt.Errorf("no model configured for role %s", role)
		}
		client, err := ollama.New(
			ollama.WithServerURL(hosts[i]),
			ollama.WithModel(name),
			ollama.WithRunnerNumCtx(opts.NumCtx),
		)
		if err != nil {
			return nil, fmt.Errorf("create %s client: %w", role, err)
		}
		p.models[role] = client
		p.names[role] = name
		if !slices.Contains(p.hosts, hosts[i]) {
			p.hosts = append(p.hosts, hosts[i])
		}
	}

	if opts.EmbeddingModel != "" {
		client, err := ollama.New(ollama.WithServerURL(hosts[0]), ollama.WithModel(opts.EmbeddingModel))
		if err != nil {
			return nil, fmt.Errorf("create embedding client: %w", err)
		}
		e, err := embeddings.NewEmbedder(client)
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		p.embedder = e
	}
	return p, nil
}

// NewWithModels builds a pool around existing models. Roles without a model
// fall back to the general one.
func NewWithModels(models map[Role]llms.Model, timeout time.Duration) *Pool {
	p := &Pool{
		models:  make(map[Role]llms.Model, len(Roles)),
		names:   make(map[Role]string, len(Roles)),
		timeout: timeout,
	}
	for _, role := range Roles {
		m, ok := models[role]
		if !ok {
			m = models[General]
		}
		p.models[role] = m
		p.names[role] = string(role)
	}
	return p
}

func (p *Pool) Model(role Role) llms.Model {
	return p.models[role]
}

func (p *Pool) ModelName(role Role) string {
	return p.names[role]
}

// Embedder returns the backend embedder, or nil when none is configured.
func (p *Pool) Embedder() embeddings.Embedder {
	return p.embedder
}

// Chat sends the messages to the model serving role and returns the reply text.
func (p *Pool) Chat(ctx context.Context, role Role, messages ...llms.MessageContent) (string, error) {
	model := p.models[role]
	if model == nil {
		return "", fmt.Errorf("no model for role %s", role)
	}
	ctx, cancel := p.WithTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := model.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", role, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate %s: %w", role, ErrEmptyResponse)
	}
	log.Debug().Str("role", string(role)).Dur("took", time.Since(start)).Msg("model replied")
	return resp.Choices[0].Content, nil
}

// WithTimeout bounds ctx by the per-call inference timeout.
func (p *Pool) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// Health probes every backend host and reports which ones answer.
func (p *Pool) Health(ctx context.Context) map[string]bool {
	health := make(map[string]bool, len(p.hosts))
	for _, host := range p.hosts {
		health[host] = p.ping(ctx, host)
	}
	return health
}

func (p *Pool) ping(ctx context.Context, host string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(host, "/")+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str(logger.HostField, host).Msg("backend unreachable")
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// System and User build single-text messages.
func System(text string) llms.MessageContent {
	return llms.TextParts(llms.ChatMessageTypeSystem, text)
}

func User(text string) llms.MessageContent {
	return llms.TextParts(llms.ChatMessageTypeHuman, text)
}

func Assistant(text string) llms.MessageContent {
	return llms.TextParts(llms.ChatMessageTypeAI, text)
}
