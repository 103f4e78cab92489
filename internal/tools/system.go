package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
)

// RegisterSystem adds host inspection tools. logFile is the agent's own log.
func RegisterSystem(r *Registry, logFile string) {
	r.MustRegister(&Tool{
		Name:        "get_system_info",
		Description: "Returns basic information about the host system.",
		Schema:      Schema{Properties: map[string]Property{}},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			host, _ := os.Hostname()
			cwd, _ := os.Getwd()
			return toJSON(map[string]any{
				"os":           runtime.GOOS,
				"architecture": runtime.GOARCH,
				"cpu_count":    runtime.NumCPU(),
				"hostname":     host,
				"go_version":   runtime.Version(),
				"cwd":          cwd,
			})
		},
	})

	r.MustRegister(&Tool{
		Name:        "view_logs",
		Description: "Returns the last N lines of the agent log.",
		Schema: Schema{Properties: map[string]Property{
			"lines": {Type: TypeInteger, Default: 50},
		}},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			lines, err := readLines(logFile)
			if errors.Is(err, os.ErrNotExist) {
				return "Log file does not exist.", nil
			}
			if err != nil {
				return "", err
			}
			if n := args.Int("lines"); n > 0 && len(lines) > n {
				lines = lines[len(lines)-n:]
			}
			return strings.Join(lines, "\n"), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "analyze_logs",
		Description: "Searches the agent log for lines containing query, case-insensitive.",
		Schema: Schema{Properties: map[string]Property{
			"query": {Type: TypeString, Default: "error"},
		}},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			lines, err := readLines(logFile)
			if errors.Is(err, os.ErrNotExist) {
				return "Log file does not exist.", nil
			}
			if err != nil {
				return "", err
			}
			query := args.String("query")
			needle := strings.ToLower(query)
			var matches []string
			for _, line := range lines {
				if strings.Contains(strings.ToLower(line), needle) {
					matches = append(matches, strings.TrimSpace(line))
				}
			}
			if len(matches) == 0 {
				return fmt.Sprintf("No matches found for '%s'.", query), nil
			}
			if len(matches) > 20 {
				matches = matches[len(matches)-20:]
			}
			return strings.Join(matches, "\n"), nil
		},
	})
}

func readLines(path string) ([]string, error) {
	if path == "" {
		return nil, os.ErrNotExist
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
