package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// runCommand runs name in dir and kills it once timeout elapses. A non-zero exit
// code is reported in the result, not as an error.
func runCommand(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) (commandResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return commandResult{}, fmt.Errorf("timed out after %s", timeout)
	}
	res := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return commandResult{}, err
	}
	return res, nil
}

func (c commandResult) format(command string) string {
	orEmpty := func(s string) string {
		if s == "" {
			return "(empty)"
		}
		return s
	}
	return fmt.Sprintf("Command: %s\nExit Code: %d\nSTDOUT:\n%s\nSTDERR:\n%s\n",
		command, c.ExitCode, orEmpty(c.Stdout), orEmpty(c.Stderr))
}

// RegisterShell adds the subprocess tools. Every call is bounded by a timeout.
func RegisterShell(r *Registry, sb *Sandbox, shellTimeout, codeTimeout time.Duration) {
	r.MustRegister(&Tool{
		Name:        "run_shell",
		Description: "Executes a shell command in the workspace and returns stdout, stderr and the exit code.",
		Schema: Schema{
			Required:   []string{"command"},
			Properties: map[string]Property{"command": {Type: TypeString}},
		},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			command := args.String("command")
			res, err := runCommand(ctx, sb.Root(), shellTimeout, "bash", "-c", command)
			if err != nil {
				return "", fmt.Errorf("command '%s': %w", command, err)
			}
			return res.format(command), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "run_python",
		Description: "Runs a Python snippet in the workspace and returns its output.",
		Schema: Schema{
			Required:   []string{"code"},
			Properties: map[string]Property{"code": {Type: TypeString}},
		},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			path := filepath.Join(sb.Root(), fmt.Sprintf(".run_%s.py", uuid.NewString()[:8]))
			if err := writeFile(path, args.String("code")); err != nil {
				return "", err
			}
			defer os.Remove(path)

			res, err := runCommand(ctx, sb.Root(), codeTimeout, "python3", path)
			if err != nil {
				return "", fmt.Errorf("python: %w", err)
			}
			out := res.Stdout
			if res.Stderr != "" {
				out += "\nSTDERR:\n" + res.Stderr
			}
			if res.ExitCode != 0 {
				return "", fmt.Errorf("exit code %d: %s", res.ExitCode, strings.TrimSpace(out))
			}
			if out == "" {
				return "Code executed successfully (no output).", nil
			}
			return out, nil
		},
	})

	r.MustRegister(&Tool{
		Name: "verify_proposal",
		Description: "Writes a proposed file change to <filename>.tmp and runs a verification command against it. " +
			"Go and Python files get a syntax check by default.",
		Schema: Schema{
			Required: []string{"filename", "content"},
			Properties: map[string]Property{
				"filename":     {Type: TypeString},
				"content":      {Type: TypeString},
				"test_command": {Type: TypeString, Default: ""},
			},
		},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			name := args.String("filename")
			path, err := sb.SafePath(name)
			if err != nil {
				return "", err
			}
			tmp := path + ".tmp"
			if err := writeFile(tmp, args.String("content")); err != nil {
				return "", err
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Proposal written to %s.\n", filepath.Base(tmp))
			command := args.String("test_command")
			switch {
			case command != "":
				command = strings.ReplaceAll(command, name, tmp)
			case strings.HasSuffix(name, ".go"):
				command = "gofmt -e " + tmp + " > /dev/null"
			case strings.HasSuffix(name, ".py"):
				command = "python3 -m py_compile " + tmp
			}
			if command == "" {
				return strings.TrimSpace(b.String()), nil
			}

			res, err := runCommand(ctx, sb.Root(), codeTimeout, "bash", "-c", command)
			if err != nil {
				return "", fmt.Errorf("verification: %w", err)
			}
			status := "Success"
			if res.ExitCode != 0 {
				status = "Failure"
			}
			fmt.Fprintf(&b, "Verification Status: %s\n", status)
			if res.Stdout != "" {
				fmt.Fprintf(&b, "STDOUT: %s\n", res.Stdout)
			}
			if res.Stderr != "" {
				fmt.Fprintf(&b, "STDERR: %s\n", res.Stderr)
			}
			return strings.TrimSpace(b.String()), nil
		},
	})
}
