package config

import (
	"path/filepath"
	"time"
)

func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.Workspace == "" {
		cfg.Workspace = "workspace"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.DataDir, "dross.log")
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = ":8001"
	}

	// Ollama defaults
	if len(cfg.Ollama.Hosts) == 0 {
		cfg.Ollama.Hosts = []string{"http://127.0.0.1:11434"}
	}
	if cfg.Ollama.NumCtx == 0 {
		cfg.Ollama.NumCtx = 20000
	}
	if cfg.Ollama.Timeout == 0 {
		cfg.Ollama.Timeout = 120 * time.Second
	}
	if cfg.Ollama.ReasoningModel == "" {
		cfg.Ollama.ReasoningModel = "phi4-mini-reasoning:latest"
	}
	if cfg.Ollama.ToolModel == "" {
		cfg.Ollama.ToolModel = "granite4:latest"
	}
	if cfg.Ollama.GeneralModel == "" {
		cfg.Ollama.GeneralModel = "qwen3:4b"
	}

	// Memory defaults
	if cfg.Memory.ShortTermLimit == 0 {
		cfg.Memory.ShortTermLimit = 15
	}
	if cfg.Memory.PruneChunk == 0 {
		cfg.Memory.PruneChunk = 5
	}
	if cfg.Memory.DedupDistance == 0 {
		cfg.Memory.DedupDistance = 0.15
	}
	if cfg.Memory.RelevanceCutoff == 0 {
		cfg.Memory.RelevanceCutoff = 1.0
	}
	if cfg.Memory.RetrieveK == 0 {
		cfg.Memory.RetrieveK = 3
	}

	if cfg.Agent.AutoLearnMinLength == 0 {
		cfg.Agent.AutoLearnMinLength = 200
	}
	if cfg.Agent.HeartbeatInterval == 0 {
		cfg.Agent.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Agent.MaxBackoff == 0 {
		cfg.Agent.MaxBackoff = 5 * time.Minute
	}

	if cfg.Fleet.MaxSteps == 0 {
		cfg.Fleet.MaxSteps = 20
	}
	if cfg.Fleet.Pause == 0 {
		cfg.Fleet.Pause = 2 * time.Second
	}

	if cfg.Tools.ShellTimeout == 0 {
		cfg.Tools.ShellTimeout = 60 * time.Second
	}
	if cfg.Tools.CodeTimeout == 0 {
		cfg.Tools.CodeTimeout = 30 * time.Second
	}
	if cfg.Tools.HTTPTimeout == 0 {
		cfg.Tools.HTTPTimeout = 15 * time.Second
	}
	if cfg.Tools.PluginDir == "" {
		cfg.Tools.PluginDir = filepath.Join(cfg.DataDir, "custom_tools")
	}

	if cfg.Telegram.PollTimeout == 0 {
		cfg.Telegram.PollTimeout = 30
	}
	if cfg.Telegram.MaxBackoff == 0 {
		cfg.Telegram.MaxBackoff = 30 * time.Second
	}
}
