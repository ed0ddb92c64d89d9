package health

import (
	"math"
	"sync"
	"time"

	. "github.com/auracoredynamics/aurarouter/internal/logging"
	"github.com/auracoredynamics/aurarouter/internal/provider"
)

// Status is one model's most recently observed health, as cached for
// consultation by the Fallback Executor's health predicate. ServiceState
// is non-empty only when a sweep short-circuited because the owning
// service was not Running (§4.8).
type Status struct {
	State        provider.HealthState
	Reason       string
	ServiceState string
	ObservedAt   time.Time
}

// Cache is a TTL-bounded map of model id to last-observed Status. A cache
// miss is treated by callers as healthy — the Fallback Executor does not
// probe inline on a miss. It also tracks per-model cooldown state (§6):
// a run of network/timeout/http_status/auth failures escalates a model's
// backoff window, writing a "down" Status directly so the next chain walk
// skips it without a network call.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry

	cdMu      sync.Mutex
	cooldowns map[string]*cooldownState
}

type cacheEntry struct {
	status    Status
	expiresAt time.Time
}

// cooldownState tracks one model's escalating backoff, mirroring the
// teacher's providerCooldown.
type cooldownState struct {
	until      time.Time
	errorCount int
	reason     string
}

// DefaultTTL is the cache entry lifetime used when none is configured.
const DefaultTTL = 30 * time.Second

// NewCache returns a Cache with the given TTL, or DefaultTTL if ttl <= 0.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, entries: map[string]cacheEntry{}, cooldowns: map[string]*cooldownState{}}
}

// Get returns the cached Status for id and whether it is present and not
// expired.
func (c *Cache) Get(id string) (Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[id]
	if !ok || time.Now().After(entry.expiresAt) {
		return Status{}, false
	}
	return entry.status, true
}

// Set stores status for id, refreshing its TTL.
func (c *Cache) Set(id string, status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = cacheEntry{status: status, expiresAt: time.Now().Add(c.ttl)}
}

// SetAll replaces every entry in statuses at once, used after a ProbeAll
// sweep so readers never see a partially-updated cache.
func (c *Cache) SetAll(statuses map[string]Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for id, status := range statuses {
		c.entries[id] = cacheEntry{status: status, expiresAt: now.Add(c.ttl)}
	}
}

// calculateCooldownDuration returns the cooldown duration for the nth
// failure (errorCount), using a two-schedule backoff:
// ordinary network/timeout/http_status failures escalate 1m -> 5m -> 25m,
// capped at 1h; auth failures (shaped like a billing/credential problem,
// unlikely to clear on its own soon) escalate 5h -> 10h -> 20h, capped at
// 24h.
func calculateCooldownDuration(errorCount int, isAuth bool) time.Duration {
	if errorCount < 1 {
		errorCount = 1
	}
	if isAuth {
		const base, maxDur = 5 * time.Hour, 24 * time.Hour
		exponent := errorCount - 1
		if exponent > 3 {
			exponent = 3
		}
		dur := time.Duration(float64(base) * math.Pow(2, float64(exponent)))
		if dur > maxDur {
			return maxDur
		}
		return dur
	}
	const base, maxDur = time.Minute, time.Hour
	exponent := errorCount - 1
	if exponent > 3 {
		exponent = 3
	}
	dur := time.Duration(float64(base) * math.Pow(5, float64(exponent)))
	if dur > maxDur {
		return maxDur
	}
	return dur
}

// MarkCooldown records a network/timeout/http_status/auth failure for id,
// escalating its backoff window and writing a "down" Status so the
// Fallback Executor's health-cache predicate skips id without a network
// call until the window expires.
func (c *Cache) MarkCooldown(id string, errorKind string) {
	c.cdMu.Lock()
	cd := c.cooldowns[id]
	if cd == nil {
		cd = &cooldownState{}
		c.cooldowns[id] = cd
	}
	cd.errorCount++
	cd.reason = errorKind
	cd.until = time.Now().Add(calculateCooldownDuration(cd.errorCount, errorKind == "auth"))
	until, count := cd.until, cd.errorCount
	c.cdMu.Unlock()

	L_warn("health: model cooldown", "model_id", id, "reason", errorKind, "error_count", count, "until", until.Format("15:04:05"))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = cacheEntry{
		status:    Status{State: provider.HealthDown, Reason: errorKind, ObservedAt: time.Now()},
		expiresAt: until,
	}
}

// ClearCooldown resets id's failure count after a successful attempt, so a
// single transient failure doesn't compound into a longer cooldown the
// next time the chain walks past id.
func (c *Cache) ClearCooldown(id string) {
	c.cdMu.Lock()
	_, wasInCooldown := c.cooldowns[id]
	delete(c.cooldowns, id)
	c.cdMu.Unlock()
	if wasInCooldown {
		L_info("health: model cooldown cleared", "model_id", id)
	}
}

// ProviderStatus is one model's cooldown/health summary, for a host CLI or
// UI's status introspection.
type ProviderStatus struct {
	ModelID    string
	InCooldown bool
	Until      time.Time
	Reason     string
	ErrorCount int
}

// Statuses returns a ProviderStatus for each id in ids, in the same order.
func (c *Cache) Statuses(ids []string) []ProviderStatus {
	c.cdMu.Lock()
	defer c.cdMu.Unlock()

	now := time.Now()
	out := make([]ProviderStatus, 0, len(ids))
	for _, id := range ids {
		status := ProviderStatus{ModelID: id}
		if cd := c.cooldowns[id]; cd != nil && now.Before(cd.until) {
			status.InCooldown = true
			status.Until = cd.until
			status.Reason = cd.reason
			status.ErrorCount = cd.errorCount
		}
		out = append(out, status)
	}
	return out
}
