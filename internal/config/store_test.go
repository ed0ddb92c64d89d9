package config

import (
	"path/filepath"
	"reflect"
	"testing"
)

func manifestWithRoles() map[string]any {
	return map[string]any{
		"models": map[string]any{
			"router_model": map[string]any{
				"provider_kind": "ollama",
				"endpoint":      "http://localhost:11434",
				"model_name":    "llama3",
			},
		},
		"roles": map[string]any{
			"router":    []any{"router_model"},
			"reasoning": []any{"router_model"},
			"coding":    []any{"router_model"},
		},
	}
}

// TestSaveLoadRoundTrip exercises §8's Save(Load(f)) property: a config
// saved to disk and reloaded must equal what was in memory before the save.
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auraconfig.yaml")

	handle, err := LoadConfig(path, manifestWithRoles())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	handle.SetModel("extra_model", ModelEntry{
		ProviderKind: KindLlamaCppEmbed,
		ModelPath:    "/models/extra.gguf",
		Tags:         []string{"private"},
	})
	handle.SetRoleChain("summarization", []string{"router_model"})
	handle.SetSemanticVerbs("summarization", []string{"summarize", "tldr"})

	before := handle.Snapshot()

	if err := handle.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("reload LoadConfig: %v", err)
	}
	after := reloaded.Snapshot()

	if !reflect.DeepEqual(before.Models, after.Models) {
		t.Errorf("Models mismatch:\nbefore=%+v\nafter=%+v", before.Models, after.Models)
	}
	if !reflect.DeepEqual(before.Roles, after.Roles) {
		t.Errorf("Roles mismatch:\nbefore=%+v\nafter=%+v", before.Roles, after.Roles)
	}
	if !reflect.DeepEqual(before.SemanticVerbs, after.SemanticVerbs) {
		t.Errorf("SemanticVerbs mismatch:\nbefore=%+v\nafter=%+v", before.SemanticVerbs, after.SemanticVerbs)
	}
}

// TestSnapshotIsACopy guards against the Snapshot-returns-live-pointer bug:
// mutating a snapshot's maps must never affect the Handle's own state.
func TestSnapshotIsACopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auraconfig.yaml")
	handle, err := LoadConfig(path, manifestWithRoles())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	snap := handle.Snapshot()
	snap.Models["router_model"] = ModelEntry{ProviderKind: KindAnthropic}

	again := handle.Snapshot()
	if again.Models["router_model"].ProviderKind != KindOllama {
		t.Errorf("mutating a snapshot leaked into the handle: got %q", again.Models["router_model"].ProviderKind)
	}
}

// TestOnReloadFiresAfterSave confirms the registry-rebuild hook runs once
// per successful Save, with the post-save config.
func TestOnReloadFiresAfterSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auraconfig.yaml")
	handle, err := LoadConfig(path, manifestWithRoles())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	var calls int
	var seen *SystemConfig
	handle.OnReload(func(cfg *SystemConfig) {
		calls++
		seen = cfg
	})

	handle.SetModel("extra_model", ModelEntry{ProviderKind: KindLlamaCppEmbed, ModelPath: "/models/x.gguf"})
	if err := handle.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if calls != 1 {
		t.Errorf("OnReload called %d times, want 1", calls)
	}
	if _, ok := seen.Models["extra_model"]; !ok {
		t.Errorf("OnReload callback did not see the newly saved model")
	}
}

// TestSaveRejectsInvalidConfig ensures a failed validation never reaches
// disk and never fires the reload callback, even though the mutators that
// produced the bad state (SetRoleChain, here) apply eagerly to the live
// in-memory tree rather than to a staged copy.
func TestSaveRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auraconfig.yaml")
	handle, err := LoadConfig(path, manifestWithRoles())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	var reloadCalls int
	handle.OnReload(func(*SystemConfig) { reloadCalls++ })

	handle.SetRoleChain("coding", []string{"does_not_exist"})
	if err := handle.Save(); err == nil {
		t.Fatal("Save: expected error for role chain referencing unknown model, got nil")
	}
	if reloadCalls != 0 {
		t.Errorf("OnReload fired %d times on a failed Save, want 0", reloadCalls)
	}
	if _, err := Load(path, nil); err == nil {
		t.Fatal("expected the config file on disk to be absent or still the pre-save version")
	}
}
