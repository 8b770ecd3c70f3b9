package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/shipwrecked/fleetcore/internal/apperr"
)

// Watch watches path's containing directory for writes to path (editors
// and the gateway's own atomic temp-file-then-rename both show up as a
// Create/Write on the directory, not on the original inode) and invokes
// onChange with a freshly reloaded Config each time. It runs until
// stop is closed, following the teacher's skills.Manager watcher
// lifecycle (a dedicated goroutine draining watcher.Events/Errors,
// cancellable via a caller-owned signal).
func Watch(path string, logger *slog.Logger, onChange func(*Config), stop <-chan struct{}) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "config-watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return apperr.ConfigError("create config watcher", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return apperr.ConfigError("watch config directory", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Error("reload config after change", "error", err)
					continue
				}
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("config watcher error", "error", err)
			}
		}
	}()
	return nil
}
