package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch reloads plugins whose manifest or source changes until ctx is done.
func (p *Plugins) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(p.dir); err != nil {
		return fmt.Errorf("watch %s: %w", p.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			manifest, ok := manifestFor(event.Name)
			if !ok {
				continue
			}
			if err := p.Load(manifest); err != nil {
				log.Debug().Err(err).Str("path", event.Name).Msg("plugin not reloaded")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("plugin watcher error")
		}
	}
}

func manifestFor(path string) (string, bool) {
	switch filepath.Ext(path) {
	case ".json":
		return path, true
	case ".go":
		return strings.TrimSuffix(path, ".go") + ".json", true
	}
	return "", false
}
