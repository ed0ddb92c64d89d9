package assets

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRegisterListRemove(t *testing.T) {
	dir := t.TempDir()
	modelFile := filepath.Join(dir, "tinyllama.gguf")
	if err := os.WriteFile(modelFile, []byte("fake gguf contents"), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	reg, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	entry, err := reg.Register(modelFile, "example/tinyllama", []string{"local"}, "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if entry.Filename != "tinyllama.gguf" {
		t.Errorf("Filename = %q, want tinyllama.gguf", entry.Filename)
	}
	if entry.SizeBytes == 0 {
		t.Errorf("SizeBytes = 0, want > 0")
	}

	list := reg.List()
	if len(list) != 1 {
		t.Fatalf("List returned %d entries, want 1", len(list))
	}

	reopened, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(reopened.List()) != 1 {
		t.Errorf("reopened registry has %d entries, want 1", len(reopened.List()))
	}

	if err := reg.Remove("tinyllama.gguf", true); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(reg.List()) != 0 {
		t.Errorf("List after Remove = %d entries, want 0", len(reg.List()))
	}
	if _, err := os.Stat(modelFile); err != nil {
		t.Errorf("Remove(keepFile=true) deleted the underlying file: %v", err)
	}
}

func TestRegisterIsIdempotentOnFilename(t *testing.T) {
	dir := t.TempDir()
	modelFile := filepath.Join(dir, "model.gguf")
	if err := os.WriteFile(modelFile, []byte("v1"), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	reg, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := reg.Register(modelFile, "repo-a", nil, ""); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := reg.Register(modelFile, "repo-b", nil, ""); err != nil {
		t.Fatalf("second Register: %v", err)
	}

	list := reg.List()
	if len(list) != 1 {
		t.Fatalf("List returned %d entries, want 1 (idempotent on filename)", len(list))
	}
	if list[0].Repo != "repo-b" {
		t.Errorf("Repo = %q, want repo-b (last write wins)", list[0].Repo)
	}
}

func TestRegisterMissingFile(t *testing.T) {
	dir := t.TempDir()
	reg, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := reg.Register(filepath.Join(dir, "missing.gguf"), "repo", nil, ""); err == nil {
		t.Errorf("Register(missing file) = nil error, want error")
	}
}
