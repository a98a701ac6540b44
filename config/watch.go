package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads TuningConfig from a file whenever it changes on disk,
// publishing each successful reload on Updates. Only the tuning knobs are
// hot-reloadable; port/metrics/whisper settings require a restart.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	Updates chan TuningConfig
}

// NewWatcher starts watching path for changes. If path is empty, the
// returned Watcher is inert: Run returns immediately and no updates are
// ever published.
func NewWatcher(path string) (*Watcher, error) {
	w := &Watcher{path: path, Updates: make(chan TuningConfig, 1)}
	if path == "" {
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	w.watcher = fsw
	return w, nil
}

// Run blocks, reloading and publishing the tuning section whenever the
// watched file is written, until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	if w.watcher == nil {
		<-ctx.Done()
		return
	}
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				slog.Error("config hot-reload failed, keeping previous tuning", "error", err, "path", w.path)
				continue
			}
			if err := Validate(cfg); err != nil {
				slog.Error("reloaded config failed validation, keeping previous tuning", "error", err, "path", w.path)
				continue
			}
			slog.Info("config tuning reloaded", "path", w.path)
			select {
			case w.Updates <- cfg.Tuning:
			default:
				// drop the stale update, next one will win
				<-w.Updates
				w.Updates <- cfg.Tuning
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)
		}
	}
}
