// Package registry materializes provider.Adapter instances from
// config.ModelEntry records, caching them and swapping the whole map
// atomically on config reload (§4.3).
package registry

import (
	"sync"
	"time"

	"github.com/auracoredynamics/aurarouter/internal/config"
	. "github.com/auracoredynamics/aurarouter/internal/logging"
	"github.com/auracoredynamics/aurarouter/internal/provider"
)

// Registry owns every live provider.Adapter. Readers (requests) take the
// read lock; Rebuild (triggered by config.Handle.Save) holds the write lock
// while it builds the new map and swaps it in. Building an adapter makes no
// network call.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]provider.Adapter
}

// New builds a Registry eagerly from cfg. Construction validation
// (adapter_build) surfaces here rather than being deferred to first use,
// since §4.3 describes lazy-per-id materialization as an optimization, not
// a correctness requirement, and eager construction lets a caller discover
// a bad model entry at startup instead of mid-request.
func New(cfg *config.SystemConfig) (*Registry, []error) {
	r := &Registry{adapters: map[string]provider.Adapter{}}
	errs := r.rebuildLocked(cfg)
	return r, errs
}

// NewFromAdapters wraps an already-built adapter map directly, bypassing
// provider.Build. Intended for tests that need a Registry without a live
// network — production code always goes through New.
func NewFromAdapters(adapters map[string]provider.Adapter) *Registry {
	copyMap := make(map[string]provider.Adapter, len(adapters))
	for id, a := range adapters {
		copyMap[id] = a
	}
	return &Registry{adapters: copyMap}
}

// Rebuild constructs a fresh adapter map from cfg and swaps it in under the
// write lock, then calls Close on every replaced adapter, including any that
// an in-flight request still holds. Every adapter kind's Close is a no-op,
// so such a request keeps working with the adapter it captured.
func (r *Registry) Rebuild(cfg *config.SystemConfig) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rebuildLocked(cfg)
}

func (r *Registry) rebuildLocked(cfg *config.SystemConfig) []error {
	fresh := make(map[string]provider.Adapter, len(cfg.Models))
	var errs []error

	timeout := time.Duration(cfg.DefaultTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	for id, entry := range cfg.Models {
		spec := provider.Spec{
			ID:           id,
			ProviderKind: string(entry.ProviderKind),
			Endpoint:     entry.Endpoint,
			ModelName:    entry.ModelName,
			ModelPath:    entry.ModelPath,
			APIKey:       config.ResolveAPIKey(entry),
			Tags:         entry.Tags,
			Locality:     provider.Locality(entry.ResolvedLocality()),
			Timeout:      timeout,
		}
		adapter, err := provider.Build(spec)
		if err != nil {
			L_warn("registry: adapter build failed", "id", id, "error", err)
			errs = append(errs, err)
			continue
		}
		fresh[id] = adapter
	}

	old := r.adapters
	r.adapters = fresh
	for id, adapter := range old {
		if fresh[id] != adapter {
			if err := adapter.Close(); err != nil {
				L_trace("registry: adapter close failed", "id", id, "error", err)
			}
		}
	}

	L_info("registry: rebuilt", "count", len(fresh), "errors", len(errs))
	return errs
}

// Get returns the adapter for id, or (nil, false) if it is missing or
// failed to build (§4.6 step 1: "record skipped_unhealthy(no_adapter) and
// continue").
func (r *Registry) Get(id string) (provider.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// IDs returns every currently registered model id.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}

// All returns a snapshot copy of the id-to-adapter map for the Health
// Prober's concurrent sweep, avoiding a lock held across probe I/O.
func (r *Registry) All() map[string]provider.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]provider.Adapter, len(r.adapters))
	for id, a := range r.adapters {
		out[id] = a
	}
	return out
}
