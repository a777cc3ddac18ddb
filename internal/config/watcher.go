package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces editor write bursts into one reload.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads the tuning section whenever the config file changes.
// Only Tuning is applied at runtime; every other section needs a restart.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(Tuning)

	mu      sync.Mutex
	timer   *time.Timer
	current Tuning
}

// NewWatcher creates a watcher for path that calls onChange with each
// valid new tuning. Invalid reloads are logged and ignored.
func NewWatcher(path string, initial Tuning, onChange func(Tuning)) *Watcher {
	return &Watcher{
		path:     path,
		debounce: DefaultDebounce,
		onChange: onChange,
		current:  initial,
	}
}

// Current returns the most recently applied tuning.
func (w *Watcher) Current() Tuning {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run watches until ctx is cancelled. The directory is watched rather than
// the file so that rename-and-replace saves are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	base := filepath.Base(w.path)
	slog.Info("config: watching for tuning changes", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.schedule()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config: watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("config: reload failed", "path", w.path, "error", err)
		return
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		slog.Warn("config: reload failed", "path", w.path, "error", err)
		return
	}
	if err := cfg.Tuning.Validate(); err != nil {
		slog.Warn("config: ignoring invalid tuning", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	if cfg.Tuning == w.current {
		w.mu.Unlock()
		return
	}
	w.current = cfg.Tuning
	w.mu.Unlock()

	slog.Info("config: tuning reloaded",
		"proximity_threshold", cfg.Tuning.ProximityThreshold,
		"touch_duration_s", cfg.Tuning.TouchDurationS)
	if w.onChange != nil {
		w.onChange(cfg.Tuning)
	}
}
