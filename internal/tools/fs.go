package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// RegisterFiles adds the file system tools confined to sb.
func RegisterFiles(r *Registry, sb *Sandbox) {
	r.MustRegister(&Tool{
		Name:        "list_files",
		Description: "Lists files in the specified directory. Directories end with '/'.",
		Schema: Schema{Properties: map[string]Property{
			"path": {Type: TypeString, Description: "directory relative to the workspace", Default: "."},
		}},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			return listFiles(sb, args.String("path"))
		},
	})

	r.MustRegister(&Tool{
		Name:        "read_file",
		Description: "Reads the content of a file.",
		Schema: Schema{
			Required:   []string{"filename"},
			Properties: map[string]Property{"filename": {Type: TypeString}},
		},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			path, err := sb.SafePath(args.String("filename"))
			if err != nil {
				return "", err
			}
			info, err := os.Stat(path)
			if errors.Is(err, os.ErrNotExist) {
				return "File does not exist.", nil
			}
			if err != nil {
				return "", err
			}
			if info.IsDir() {
				return "Path is a directory, not a file.", nil
			}
			b, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("read file: %w", err)
			}
			return string(b), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "write_file",
		Description: "Writes content to a file, overwriting it if it exists.",
		Schema: Schema{
			Required: []string{"filename", "content"},
			Properties: map[string]Property{
				"filename": {Type: TypeString},
				"content":  {Type: TypeString},
			},
		},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			name := args.String("filename")
			path, err := sb.SafePath(name)
			if err != nil {
				return "", err
			}
			if err := writeFile(path, args.String("content")); err != nil {
				return "", err
			}
			return fmt.Sprintf("Successfully wrote to %s", name), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "get_file_info",
		Description: "Returns size and modification time of a file.",
		Schema: Schema{
			Required:   []string{"filename"},
			Properties: map[string]Property{"filename": {Type: TypeString}},
		},
		Execute: func(ctx context.Context, args Args, _ *Env) (string, error) {
			name := args.String("filename")
			path, err := sb.SafePath(name)
			if err != nil {
				return "", err
			}
			info, err := os.Stat(path)
			if errors.Is(err, os.ErrNotExist) {
				return "File does not exist.", nil
			}
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("File: %s\nSize: %d bytes\nModified: %s",
				name, info.Size(), info.ModTime().Format("2006-01-02 15:04:05")), nil
		},
	})
}

func listFiles(sb *Sandbox, dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	path, err := sb.SafePath(dir)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if errors.Is(err, os.ErrNotExist) {
		return "Directory does not exist.", nil
	}
	if err != nil {
		return "", fmt.Errorf("list files: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name()+"/")
		} else {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	b, err := json.Marshal(names)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
