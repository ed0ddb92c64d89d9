package health

import (
	"context"
	"testing"

	"github.com/auracoredynamics/aurarouter/internal/provider"
)

type fakeAdapter struct {
	id     string
	health provider.Health
	err    error
}

func (f *fakeAdapter) ID() string                    { return f.id }
func (f *fakeAdapter) Locality() provider.Locality    { return provider.LocalityLocal }
func (f *fakeAdapter) Tags() []string                 { return nil }
func (f *fakeAdapter) Generate(ctx context.Context, prompt string, params provider.Params) (provider.GenerateResult, error) {
	return provider.GenerateResult{}, nil
}
func (f *fakeAdapter) HealthProbe(ctx context.Context) (provider.Health, error) {
	return f.health, f.err
}
func (f *fakeAdapter) Close() error { return nil }

func TestProbeAllAggregatesResults(t *testing.T) {
	adapters := map[string]provider.Adapter{
		"a": &fakeAdapter{id: "a", health: provider.Health{State: provider.HealthHealthy}},
		"b": &fakeAdapter{id: "b", health: provider.Health{State: provider.HealthDegraded, Reason: "slow"}},
	}

	results := ProbeAll(context.Background(), adapters, func() ServiceState { return StateRunning })

	if len(results) != 2 {
		t.Fatalf("ProbeAll returned %d results, want 2", len(results))
	}
	if results["a"].State != provider.HealthHealthy {
		t.Errorf("a.State = %v, want healthy", results["a"].State)
	}
	if results["b"].State != provider.HealthDegraded {
		t.Errorf("b.State = %v, want degraded", results["b"].State)
	}
}

func TestProbeAllShortCircuitsWhenNotRunning(t *testing.T) {
	adapters := map[string]provider.Adapter{
		"a": &fakeAdapter{id: "a"},
	}

	results := ProbeAll(context.Background(), adapters, func() ServiceState { return StateStopped })

	status, ok := results["a"]
	if !ok {
		t.Fatalf("ProbeAll did not report model a")
	}
	if status.ServiceState != string(StateStopped) {
		t.Errorf("ServiceState = %q, want %q", status.ServiceState, StateStopped)
	}
	if status.State != "" {
		t.Errorf("State = %q, want empty (no probe performed)", status.State)
	}
}

func TestCacheMissVsHit(t *testing.T) {
	cache := NewCache(0)
	if _, ok := cache.Get("missing"); ok {
		t.Errorf("Get(missing) = ok, want miss")
	}
	cache.Set("a", Status{State: provider.HealthHealthy})
	status, ok := cache.Get("a")
	if !ok || status.State != provider.HealthHealthy {
		t.Errorf("Get(a) = %+v, %v, want healthy, true", status, ok)
	}
}
