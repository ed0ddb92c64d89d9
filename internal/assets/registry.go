// Package assets implements the Asset Registry of §4.9: a JSON-backed
// ledger of locally downloaded GGUF files, alongside the config system's
// ability to register them as llamacpp-embedded model entries.
package assets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/auracoredynamics/aurarouter/internal/atomicfile"
	"github.com/auracoredynamics/aurarouter/internal/config"
	. "github.com/auracoredynamics/aurarouter/internal/logging"
)

// Entry is one registered asset.
type Entry struct {
	Repo         string    `json:"repo"`
	Filename     string    `json:"filename"`
	AbsolutePath string    `json:"absolute_path"`
	SizeBytes    int64     `json:"size_bytes"`
	RegisteredAt time.Time `json:"registered_at"`
	Tags         []string  `json:"tags,omitempty"`
}

type document struct {
	Entries []Entry `json:"entries"`
	Version int     `json:"version"`
}

const currentVersion = 1

// Registry is the on-disk ledger at <models_dir>/models.json, plus an
// optional link back to the Configuration Store so register() can add a
// corresponding ModelEntry.
type Registry struct {
	mu        sync.Mutex
	path      string
	entries   map[string]Entry // keyed by filename
	cfgHandle *config.Handle
}

// Open loads (or initializes) the registry file at <modelsDir>/models.json.
// cfgHandle may be nil; Register then records the asset without adding a
// ModelEntry.
func Open(modelsDir string, cfgHandle *config.Handle) (*Registry, error) {
	path := filepath.Join(modelsDir, "models.json")
	r := &Registry{path: path, entries: map[string]Entry{}, cfgHandle: cfgHandle}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var doc document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse asset registry: %w", err)
		}
		for _, e := range doc.Entries {
			r.entries[e.Filename] = e
		}
	case os.IsNotExist(err):
		L_info("assets: no registry file found, starting empty", "path", path)
	default:
		return nil, fmt.Errorf("read asset registry: %w", err)
	}

	return r, nil
}

// List returns every registered entry, ordered by filename for determinism.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sortEntriesByFilename(out)
	return out
}

// Register verifies path exists, records its size, and upserts an Entry
// keyed by its base filename (idempotent — re-registering the same
// filename overwrites the prior entry rather than duplicating it). If a
// config.Handle was supplied at Open, it also adds or updates a
// provider_kind=llamacpp-embedded ModelEntry named id (defaulting to the
// filename without extension when id is empty). The new model is never
// inserted into any role chain — that remains the caller's decision,
// per §4.9.
func (r *Registry) Register(path, repo string, tags []string, id string) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, fmt.Errorf("asset file not accessible: %w", err)
	}
	if info.IsDir() {
		return Entry{}, fmt.Errorf("asset path %q is a directory, not a file", path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	filename := filepath.Base(path)

	entry := Entry{
		Repo:         repo,
		Filename:     filename,
		AbsolutePath: absPath,
		SizeBytes:    info.Size(),
		RegisteredAt: time.Now(),
		Tags:         tags,
	}

	r.mu.Lock()
	r.entries[filename] = entry
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if err := r.persist(snapshot); err != nil {
		return Entry{}, err
	}

	if r.cfgHandle != nil {
		modelID := id
		if modelID == "" {
			modelID = trimExt(filename)
		}
		r.cfgHandle.SetModel(modelID, config.ModelEntry{
			ProviderKind: config.KindLlamaCppEmbed,
			ModelPath:    absPath,
			Tags:         tags,
			Locality:     config.LocalityLocal,
		})
	}

	L_info("assets: registered", "filename", filename, "repo", repo, "size_bytes", entry.SizeBytes)
	return entry, nil
}

// Remove deletes filename's registry entry. When keepFile is false, the
// underlying asset file is also removed from disk.
func (r *Registry) Remove(filename string, keepFile bool) error {
	r.mu.Lock()
	entry, ok := r.entries[filename]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("asset %q is not registered", filename)
	}
	delete(r.entries, filename)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if err := r.persist(snapshot); err != nil {
		return err
	}

	if !keepFile {
		if err := os.Remove(entry.AbsolutePath); err != nil && !os.IsNotExist(err) {
			L_warn("assets: failed to delete underlying file", "path", entry.AbsolutePath, "error", err)
		}
	}

	L_info("assets: removed", "filename", filename, "kept_file", keepFile)
	return nil
}

func (r *Registry) snapshotLocked() document {
	entries := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	sortEntriesByFilename(entries)
	return document{Entries: entries, Version: currentVersion}
}

func (r *Registry) persist(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal asset registry: %w", err)
	}
	if err := atomicfile.Write(r.path, data, 0600); err != nil {
		return fmt.Errorf("write asset registry: %w", err)
	}
	return nil
}

func sortEntriesByFilename(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Filename < entries[j].Filename })
}

func trimExt(filename string) string {
	ext := filepath.Ext(filename)
	return filename[:len(filename)-len(ext)]
}
