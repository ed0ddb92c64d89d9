package fabric

import (
	"context"
	"fmt"
	"sort"

	"github.com/auracoredynamics/aurarouter/internal/assets"
	"github.com/auracoredynamics/aurarouter/internal/config"
	"github.com/auracoredynamics/aurarouter/internal/health"
	. "github.com/auracoredynamics/aurarouter/internal/logging"
	"github.com/auracoredynamics/aurarouter/internal/privacy"
	"github.com/auracoredynamics/aurarouter/internal/registry"
)

// Fabric is the composed runtime object of the glossary: it owns a
// config.Handle and services Execute, Health, and RegisterAsset. Every
// public API takes an explicit *Fabric — there is no ambient global
// instance (§9's "explicit handles" design note).
type Fabric struct {
	cfgHandle *config.Handle
	registry  *registry.Registry
	cache     *health.Cache
	assets    *assets.Registry

	// Budget is the pluggable external-collaborator hook consulted by the
	// Fallback Executor's budget predicate. Defaults to always-allow.
	Budget func(modelID string) bool

	// ExecRole is the default task-executing role when a caller's Execute
	// call doesn't name one (§4.7: "default coding").
	ExecRole string

	// MaxPlanSteps caps a parsed plan (§4.7, default 12).
	MaxPlanSteps int
}

// New builds a Fabric from an already-loaded config.Handle. modelsDir is
// the Asset Registry's storage root (for its models.json ledger); pass ""
// to disable asset registration.
func New(cfgHandle *config.Handle, modelsDir string) (*Fabric, error) {
	cfg := cfgHandle.Snapshot()

	reg, errs := registry.New(cfg)
	for _, err := range errs {
		L_warn("fabric: adapter build error at startup", "error", err)
	}

	return NewWithRegistry(cfgHandle, reg, modelsDir)
}

// NewWithRegistry builds a Fabric from an already-constructed Registry,
// letting tests supply one built from scripted adapters via
// registry.NewFromAdapters instead of going through the network.
func NewWithRegistry(cfgHandle *config.Handle, reg *registry.Registry, modelsDir string) (*Fabric, error) {
	f := &Fabric{
		cfgHandle:    cfgHandle,
		registry:     reg,
		cache:        health.NewCache(health.DefaultTTL),
		ExecRole:     "coding",
		MaxPlanSteps: DefaultMaxPlanSteps,
	}

	if modelsDir != "" {
		assetReg, err := assets.Open(modelsDir, cfgHandle)
		if err != nil {
			return nil, fmt.Errorf("open asset registry: %w", err)
		}
		f.assets = assetReg
	}

	cfgHandle.OnReload(func(newCfg *config.SystemConfig) {
		if errs := f.registry.Rebuild(newCfg); len(errs) > 0 {
			L_warn("fabric: adapter rebuild produced errors", "count", len(errs))
		}
	})

	return f, nil
}

// Health runs a probe sweep across every registered adapter and refreshes
// the health cache, returning the fresh results. stateFn reports the
// owning service's lifecycle state for §4.8's state-aware short-circuit;
// pass nil to always probe.
func (f *Fabric) Health(ctx context.Context, stateFn func() health.ServiceState) map[string]health.Status {
	results := health.ProbeAll(ctx, f.registry.All(), stateFn)
	f.cache.SetAll(results)
	return results
}

// ProviderStatus returns every registered model's cooldown/health summary,
// for a host CLI or UI to render (§6). Models never attempted since process start
// and not currently in cooldown report a zero-value, not-in-cooldown entry.
func (f *Fabric) ProviderStatus() []health.ProviderStatus {
	adapters := f.registry.All()
	ids := make([]string, 0, len(adapters))
	for id := range adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return f.cache.Statuses(ids)
}

// RegisterAsset verifies path, records it in the Asset Registry, and adds
// a corresponding llamacpp-embedded ModelEntry to the Configuration Store
// (§4.9). Returns an error if this Fabric was built with no models
// directory.
func (f *Fabric) RegisterAsset(path, repo string, tags []string, id string) (assets.Entry, error) {
	if f.assets == nil {
		return assets.Entry{}, fmt.Errorf("fabric: asset registry not configured")
	}
	return f.assets.Register(path, repo, tags, id)
}

// ListAssets returns every entry in the Asset Registry. Returns nil if this
// Fabric was built with no models directory.
func (f *Fabric) ListAssets() []assets.Entry {
	if f.assets == nil {
		return nil
	}
	return f.assets.List()
}

// privacyAuditor builds an Auditor reflecting the current config's
// disabled-detector list. Constructed per-call since config can reload.
func (f *Fabric) privacyAuditor() *privacy.Auditor {
	cfg := f.cfgHandle.Snapshot()
	return privacy.NewFromNames(cfg.DisabledPrivacyDetectors)
}

func (f *Fabric) effectiveTimeoutSeconds() int {
	cfg := f.cfgHandle.Snapshot()
	if cfg.DefaultTimeoutSeconds > 0 {
		return cfg.DefaultTimeoutSeconds
	}
	return 30
}
