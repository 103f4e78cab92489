package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var workspacePrefixes = []string{"workspace/", "workspace\\"}

// Sandbox confines file paths to a root directory.
type Sandbox struct {
	root string
}

func NewSandbox(root string) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}
	return &Sandbox{root: filepath.Clean(abs)}, nil
}

func (s *Sandbox) Root() string {
	return s.root
}

// SafePath resolves name under the root. A leading "workspace/" alias is
// stripped; anything resolving outside the root is rejected.
func (s *Sandbox) SafePath(name string) (string, error) {
	clean := strings.TrimSpace(name)
	for _, prefix := range workspacePrefixes {
		clean = strings.TrimPrefix(clean, prefix)
	}

	var resolved string
	if filepath.IsAbs(clean) {
		resolved = filepath.Clean(clean)
	} else {
		resolved = filepath.Clean(filepath.Join(s.root, clean))
	}

	if resolved != s.root && !strings.HasPrefix(resolved, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: '%s' resolves to '%s'", ErrPathEscape, name, resolved)
	}
	return resolved, nil
}
