package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alucardeht/ytscribe-mcp/internal/logger"
)

var log = logger.ForComponent("config")

const DefaultDebounceWindow = 300 * time.Millisecond

// Watch reloads path whenever it changes and hands every valid config to
// onChange. It watches the parent directory so files replaced by rename are
// still seen. An invalid file is logged and the previous config stays in
// effect. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, window time.Duration, onChange func(*Config)) error {
	path = filepath.Clean(ResolvePath(path))
	if window <= 0 {
		window = DefaultDebounceWindow
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer fsWatcher.Close()

	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	debouncer := NewDebouncer(window, func([]string) {
		cfg, err := Load(path)
		if err != nil {
			log.Warn("config reload failed, keeping previous config", "path", path, "error", err)
			return
		}
		log.Info("config reloaded", "path", path)
		onChange(cfg)
	})
	defer debouncer.Stop()

	log.Debug("watching config", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				log.Debug("config event", "path", event.Name, "op", event.Op.String())
				debouncer.Add(event.Name)
			}

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", "error", err)
		}
	}
}
