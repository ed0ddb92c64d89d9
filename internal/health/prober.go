// Package health implements the bounded-concurrency probe sweep of §4.8,
// populating a TTL cache the Fallback Executor consults before each attempt.
package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	. "github.com/auracoredynamics/aurarouter/internal/logging"
	"github.com/auracoredynamics/aurarouter/internal/provider"
)

// ServiceState is the owning process's lifecycle state, supplied by the
// host collaborator. ProbeAll short-circuits to zero network calls unless
// it is Running, per §4.8's "state-aware" requirement.
type ServiceState string

const (
	StateRunning  ServiceState = "running"
	StateStarting ServiceState = "starting"
	StateStopped  ServiceState = "stopped"
)

// defaultMaxConcurrency bounds in-flight probes when more than this many
// models are configured.
const defaultMaxConcurrency = 8

// ProbeAll probes every (id, adapter) pair in adapters concurrently,
// bounded by min(defaultMaxConcurrency, len(adapters)) in-flight probes,
// each under a 5s deadline inherited from provider.Adapter.HealthProbe.
// When stateFn() is not Running, every model is reported with the current
// service state and zero network calls are made.
func ProbeAll(ctx context.Context, adapters map[string]provider.Adapter, stateFn func() ServiceState) map[string]Status {
	now := time.Now()

	if stateFn != nil {
		if state := stateFn(); state != StateRunning {
			results := make(map[string]Status, len(adapters))
			for id := range adapters {
				results[id] = Status{ServiceState: string(state), ObservedAt: now}
			}
			return results
		}
	}

	concurrency := defaultMaxConcurrency
	if len(adapters) < concurrency {
		concurrency = len(adapters)
	}
	if concurrency <= 0 {
		return map[string]Status{}
	}

	type probeResult struct {
		id     string
		status Status
	}

	resultCh := make(chan probeResult, len(adapters))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, concurrency)

	for id, adapter := range adapters {
		id, adapter := id, adapter
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			defer func() { <-sem }()

			health, err := adapter.HealthProbe(gctx)
			if err != nil {
				L_trace("health: probe failed", "id", id, "error", err)
				resultCh <- probeResult{id: id, status: Status{
					State: provider.HealthDown, Reason: err.Error(), ObservedAt: time.Now(),
				}}
				return nil
			}
			resultCh <- probeResult{id: id, status: Status{
				State: health.State, Reason: health.Reason, ObservedAt: time.Now(),
			}}
			return nil
		})
	}

	_ = g.Wait()
	close(resultCh)

	results := make(map[string]Status, len(adapters))
	for r := range resultCh {
		results[r.id] = r.status
	}
	return results
}
