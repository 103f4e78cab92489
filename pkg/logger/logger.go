package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	ActorIDField    = "actor"
	AgentNameField  = "agent"
	NamespaceField  = "namespace"
	SubagentIDField = "subagent"
	ToolField       = "tool"
	StepField       = "step"
	IntentField     = "intent"
	SourceField     = "source"
	HostField       = "host"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewGlobal configures the global logger. With logFile set, every entry is also
// appended to that file as JSON; the returned closer releases it.
func NewGlobal(level string, pretty bool, logFile string) (io.Closer, error) {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zerolog.SetGlobalLevel(l)

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	if logFile == "" {
		log.Logger = log.Output(out)
		return nopCloser{}, nil
	}

	f, err := openLog(logFile)
	if err != nil {
		return nil, err
	}
	log.Logger = log.Output(zerolog.MultiLevelWriter(out, f))
	return f, nil
}

// NewFile configures the global logger to write only to logFile, for when the
// terminal belongs to an interactive UI.
func NewFile(level string, logFile string) (io.Closer, error) {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(l)

	f, err := openLog(logFile)
	if err != nil {
		return nil, err
	}
	log.Logger = log.Output(f)
	return f, nil
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}
