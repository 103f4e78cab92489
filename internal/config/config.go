// Package config loads the agent configuration: a YAML file with defaults,
// then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go-dross/internal/memory"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir   string         `yaml:"data_dir"`
	Workspace string         `yaml:"workspace"`
	Log       LogConfig      `yaml:"log"`
	API       APIConfig      `yaml:"api"`
	Ollama    OllamaConfig   `yaml:"ollama"`
	Memory    MemoryConfig   `yaml:"memory"`
	Agent     AgentConfig    `yaml:"agent"`
	Fleet     FleetConfig    `yaml:"fleet"`
	Tools     ToolsConfig    `yaml:"tools"`
	Telegram  TelegramConfig `yaml:"telegram"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	File   string `yaml:"file"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

type OllamaConfig struct {
	Hosts          []string      `yaml:"hosts"`
	NumCtx         int           `yaml:"num_ctx"`
	Timeout        time.Duration `yaml:"timeout"`
	ReasoningModel string        `yaml:"reasoning_model"`
	ToolModel      string        `yaml:"tool_model"`
	GeneralModel   string        `yaml:"general_model"`
	EmbeddingModel string        `yaml:"embedding_model"`
}

type MemoryConfig struct {
	ShortTermLimit  int     `yaml:"short_term_limit"`
	PruneChunk      int     `yaml:"prune_chunk"`
	DedupDistance   float64 `yaml:"dedup_distance"`
	RelevanceCutoff float64 `yaml:"relevance_cutoff"`
	RetrieveK       int     `yaml:"retrieve_k"`
}

type AgentConfig struct {
	AutoLearnMinLength int           `yaml:"auto_learn_min_length"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	MaxBackoff         time.Duration `yaml:"max_backoff"`
}

type FleetConfig struct {
	MaxSteps int           `yaml:"max_steps"`
	Pause    time.Duration `yaml:"pause"`
}

type ToolsConfig struct {
	ShellTimeout time.Duration `yaml:"shell_timeout"`
	CodeTimeout  time.Duration `yaml:"code_timeout"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	PluginDir    string        `yaml:"plugin_dir"`
}

type TelegramConfig struct {
	Token       string        `yaml:"token"`
	ChatID      int64         `yaml:"chat_id"`
	PollTimeout int           `yaml:"poll_timeout"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// Enabled reports whether the Telegram bridge has credentials.
func (t TelegramConfig) Enabled() bool {
	return t.Token != "" && t.ChatID != 0
}

// Load reads path, applies defaults and environment overrides and validates
// the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML, then applies defaults and the overrides found by lookup.
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(cfg)
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	if v, ok := lookup("OLLAMA_HOSTS"); ok && strings.TrimSpace(v) != "" {
		hosts := make([]string, 0)
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hosts = append(hosts, h)
			}
		}
		cfg.Ollama.Hosts = hosts
	}
	if err := integer("OLLAMA_NUM_CTX", &cfg.Ollama.NumCtx); err != nil {
		return err
	}

	seconds := -1
	if err := integer("HEARTBEAT_INTERVAL", &seconds); err != nil {
		return err
	}
	if seconds >= 0 {
		cfg.Agent.HeartbeatInterval = time.Duration(seconds) * time.Second
	}
	if err := integer("AUTO_LEARN_MIN_LENGTH", &cfg.Agent.AutoLearnMinLength); err != nil {
		return err
	}

	str("TELEGRAM_BOT_TOKEN", &cfg.Telegram.Token)
	if v, ok := lookup("TELEGRAM_CHAT_ID"); ok && strings.TrimSpace(v) != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Telegram.ChatID = id
	}
	if err := integer("TELEGRAM_POLL_TIMEOUT", &cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	str("DROSS_LOG_LEVEL", &cfg.Log.Level)
	return nil
}

// Validate checks a Config for values the agent cannot run with.
func Validate(cfg *Config) error {
	if len(cfg.Ollama.Hosts) == 0 {
		return fmt.Errorf("ollama.hosts is required")
	}
	if cfg.Ollama.ReasoningModel == "" || cfg.Ollama.ToolModel == "" || cfg.Ollama.GeneralModel == "" {
		return fmt.Errorf("ollama models for every role are required")
	}
	if cfg.Ollama.NumCtx < 0 {
		return fmt.Errorf("ollama.num_ctx must be >= 0, got %d", cfg.Ollama.NumCtx)
	}
	if cfg.Agent.HeartbeatInterval <= 0 {
		return fmt.Errorf("agent.heartbeat_interval must be positive, got %s", cfg.Agent.HeartbeatInterval)
	}
	if cfg.Memory.DedupDistance < 0 || cfg.Memory.DedupDistance > 2 {
		return fmt.Errorf("memory.dedup_distance must be within [0, 2], got %v", cfg.Memory.DedupDistance)
	}
	if cfg.Memory.RelevanceCutoff < 0 || cfg.Memory.RelevanceCutoff > 2 {
		return fmt.Errorf("memory.relevance_cutoff must be within [0, 2], got %v", cfg.Memory.RelevanceCutoff)
	}
	if cfg.Memory.PruneChunk < 1 || cfg.Memory.PruneChunk > cfg.Memory.ShortTermLimit {
		return fmt.Errorf("memory.prune_chunk must be within [1, short_term_limit], got %d", cfg.Memory.PruneChunk)
	}
	if cfg.Fleet.MaxSteps < 1 {
		return fmt.Errorf("fleet.max_steps must be >= 1, got %d", cfg.Fleet.MaxSteps)
	}
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required when a token is set")
	}
	return nil
}

func (m MemoryConfig) Options() memory.Options {
	return memory.Options{
		ShortTermLimit:  m.ShortTermLimit,
		PruneChunk:      m.PruneChunk,
		DedupDistance:   m.DedupDistance,
		RelevanceCutoff: m.RelevanceCutoff,
		RetrieveK:       m.RetrieveK,
	}
}
