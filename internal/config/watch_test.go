package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestReloadFromDiskSwapsConfigAndFiresCallbacks drives reloadFromDisk
// directly rather than through a real fsnotify event, since filesystem
// event timing is inherently flaky in a test environment — the debounce
// and event-filtering logic in watchLoop is a thin wrapper around this.
func TestReloadFromDiskSwapsConfigAndFiresCallbacks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auraconfig.yaml")
	handle, err := LoadConfig(path, manifestWithRoles())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	var reloadCalls int
	handle.OnReload(func(*SystemConfig) { reloadCalls++ })

	handle.SetModel("extra_model", ModelEntry{ProviderKind: KindLlamaCppEmbed, ModelPath: "/models/extra.gguf"})
	if err := handle.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var onChangeCalls int
	var onChangeCfg *SystemConfig
	handle.reloadFromDisk(func(cfg *SystemConfig) {
		onChangeCalls++
		onChangeCfg = cfg
	})

	if reloadCalls != 2 {
		t.Errorf("OnReload fired %d times, want 2 (once for Save, once for reloadFromDisk)", reloadCalls)
	}
	if onChangeCalls != 1 {
		t.Errorf("onChange fired %d times, want 1", onChangeCalls)
	}
	if _, ok := onChangeCfg.Models["extra_model"]; !ok {
		t.Errorf("onChange callback did not see the saved model")
	}
}

// TestReloadFromDiskLeavesConfigUntouchedOnParseFailure guards against a
// transient editor save (truncated or half-written file) ever taking the
// in-memory config down.
func TestReloadFromDiskLeavesConfigUntouchedOnParseFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auraconfig.yaml")
	handle, err := LoadConfig(path, manifestWithRoles())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	before := handle.Snapshot()

	if err := handle.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(path, []byte(": : not valid yaml :::"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var onChangeCalls int
	handle.reloadFromDisk(func(*SystemConfig) { onChangeCalls++ })

	if onChangeCalls != 0 {
		t.Errorf("onChange fired %d times on a parse failure, want 0", onChangeCalls)
	}
	after := handle.Snapshot()
	if after.Models["router_model"].ProviderKind != before.Models["router_model"].ProviderKind {
		t.Errorf("in-memory config changed after a failed reload: before=%+v after=%+v", before, after)
	}
}

// TestWatchDetectsExternalEdit exercises the real fsnotify path end to end:
// a new version of the config file written to disk (here by Save; the
// watcher reacts to any write of the file) should, within a generous
// timeout, reach onChange. Polls rather than asserting a fixed delay since
// fsnotify delivery and the debounce timer both have real-world jitter.
func TestWatchDetectsExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auraconfig.yaml")
	handle, err := LoadConfig(path, manifestWithRoles())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := handle.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	changed := make(chan *SystemConfig, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop, err := handle.Watch(ctx, func(cfg *SystemConfig) {
		select {
		case changed <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	handle.SetModel("watched_model", ModelEntry{ProviderKind: KindLlamaCppEmbed, ModelPath: "/models/watched.gguf"})
	if err := handle.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	select {
	case cfg := <-changed:
		if _, ok := cfg.Models["watched_model"]; !ok {
			t.Errorf("onChange fired but reloaded config is missing watched_model: %+v", cfg.Models)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("onChange was not called within 5s of the external save")
	}
}

// TestWatchStopIsIdempotent confirms the stop function returned by Watch
// can be called more than once without panicking (deferred stop alongside
// an early, explicit stop is a common caller pattern).
func TestWatchStopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auraconfig.yaml")
	handle, err := LoadConfig(path, manifestWithRoles())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := handle.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	stop, err := handle.Watch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := stop(); err != nil {
		t.Errorf("first stop: %v", err)
	}
	if err := stop(); err != nil {
		t.Errorf("second stop: %v", err)
	}
}
