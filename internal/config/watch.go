package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	. "github.com/auracoredynamics/aurarouter/internal/logging"
)

// DefaultWatchDebounce collapses the burst of write events a single save
// typically produces (temp-file write + rename) into one reload.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watch starts watching h's config file for changes made outside the
// mutation API (an operator hand-editing auraconfig.yaml directly), per
// §6's supplemented hot-reload. On a debounced change it reloads from
// disk, swaps it into h, runs h's OnReload callback (the Model Registry's
// Rebuild, same as after Save), and then calls onChange if non-nil. The
// manifest layer is not reapplied on reload — it is grid-runtime metadata
// supplied once at startup, not part of the on-disk file being watched.
// Returns a stop function; cancelling ctx also stops the watch.
func (h *Handle) Watch(ctx context.Context, onChange func(*SystemConfig)) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watch: %w", err)
	}
	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config watch: %w", err)
	}

	stopCh := make(chan struct{})
	go h.watchLoop(watcher, stopCh, onChange)

	var stopped bool
	stop := func() error {
		if stopped {
			return nil
		}
		stopped = true
		close(stopCh)
		return watcher.Close()
	}
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				stop()
			case <-stopCh:
			}
		}()
	}
	return stop, nil
}

func (h *Handle) watchLoop(watcher *fsnotify.Watcher, stopCh chan struct{}, onChange func(*SystemConfig)) {
	defer watcher.Close()
	target := filepath.Base(h.path)
	var timer *time.Timer
	for {
		select {
		case <-stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(DefaultWatchDebounce, func() { h.reloadFromDisk(onChange) })
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			L_warn("config: watch error", "path", h.path, "error", err)
		}
	}
}

// reloadFromDisk re-runs Load on h.path (built-in defaults, then the file,
// then AURAROUTER_ environment overrides; no manifest layer) and, on success,
// swaps it in and notifies both h's registered OnReload and onChange.
// A parse or validation failure is logged and the in-memory config is
// left untouched, so a transient editor save (e.g. a half-written file)
// never takes a running Fabric down.
func (h *Handle) reloadFromDisk(onChange func(*SystemConfig)) {
	result, err := Load(h.path, nil)
	if err != nil {
		L_warn("config: reload after external change failed", "path", h.path, "error", err)
		return
	}

	h.mu.Lock()
	h.cfg = result.Config
	cfg := h.cfg
	cb := h.onReload
	h.mu.Unlock()

	L_info("config: reloaded after external change", "path", h.path)
	if cb != nil {
		cb(cfg)
	}
	if onChange != nil {
		onChange(cfg)
	}
}
