// Package fallback implements the Fallback Executor of §4.6: walk a chain
// of model ids in order, consult a SkipPolicy, invoke the first viable
// adapter, and record every attempt along the way.
package fallback

import (
	"context"
	"fmt"
	"time"

	. "github.com/auracoredynamics/aurarouter/internal/logging"
	"github.com/auracoredynamics/aurarouter/internal/provider"
)

// Outcome is the closed set of per-attempt results.
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeSkippedBudget    Outcome = "skipped_budget"
	OutcomeSkippedPrivacy   Outcome = "skipped_privacy"
	OutcomeSkippedUnhealthy Outcome = "skipped_unhealthy"
	OutcomeError            Outcome = "error"
)

// Attempt is one invocation record (§3).
type Attempt struct {
	ModelID   string
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   Outcome
	ErrorKind string
	TokensIn  int
	TokensOut int
	Preview   string
}

// SkipPolicy holds the three predicates the executor consults, in the
// fixed order privacy, health-cache, budget (§4.6 step 2). A nil predicate
// is treated as always-allow (never skip).
type SkipPolicy struct {
	// Privacy reports whether id must be skipped because the prompt was
	// flagged and id is neither local nor tagged private.
	Privacy func(id string) bool
	// HealthCache reports whether id's cached health says it should be
	// skipped (state == down).
	HealthCache func(id string) bool
	// Budget is the pluggable external-collaborator hook; defaults to
	// always-allow when nil.
	Budget func(id string) bool

	// OnAttempt, when non-nil, is notified after every attempted (i.e. not
	// skipped) generation with its outcome and error kind ("" on success).
	// The health cache's cooldown bookkeeping hangs off this hook rather
	// than Execute knowing about health.Cache directly.
	OnAttempt func(id string, outcome Outcome, errorKind string)
}

func (p SkipPolicy) evaluate(id string) (Outcome, bool) {
	if p.Privacy != nil && p.Privacy(id) {
		return OutcomeSkippedPrivacy, true
	}
	if p.HealthCache != nil && p.HealthCache(id) {
		return OutcomeSkippedUnhealthy, true
	}
	if p.Budget != nil && p.Budget(id) {
		return OutcomeSkippedBudget, true
	}
	return "", false
}

// AllFailed is the all_failed(stage, attempts) error kind: the chain was
// exhausted without a successful attempt.
type AllFailed struct {
	Stage    string
	Attempts []Attempt
}

func (e *AllFailed) Error() string {
	return fmt.Sprintf("all_failed(%s): %d attempts exhausted", e.Stage, len(e.Attempts))
}

// PIINoViableModel is the pii_no_viable_model(stage) error kind: every
// model in the chain was skipped for privacy before any was attempted.
type PIINoViableModel struct{ Stage string }

func (e *PIINoViableModel) Error() string {
	return fmt.Sprintf("pii_no_viable_model(%s)", e.Stage)
}

// Cancelled is the cancelled(stage) error kind.
type Cancelled struct{ Stage string }

func (e *Cancelled) Error() string { return fmt.Sprintf("cancelled(%s)", e.Stage) }

// Lookup resolves a model id to its adapter, mirroring registry.Registry.Get
// without requiring this package to import registry (which in turn would
// import provider and config — fallback only needs the narrow lookup).
type Lookup func(id string) (provider.Adapter, bool)

// Result is a successful Execute outcome.
type Result struct {
	Text      string
	TokensIn  int
	TokensOut int
	Attempts  []Attempt
}

// Execute walks chain in order, never reshuffling it (§4.6's ordering
// tie-break), and returns the first successful generation plus the full
// attempt log, or an *AllFailed / *PIINoViableModel / *Cancelled error.
func Execute(ctx context.Context, stage string, chain []string, lookup Lookup, prompt string, params provider.Params, policy SkipPolicy) (Result, error) {
	attempts := make([]Attempt, 0, len(chain))
	skippedPrivacyCount := 0

	for _, id := range chain {
		select {
		case <-ctx.Done():
			attempts = append(attempts, Attempt{ModelID: id, StartedAt: time.Now(), EndedAt: time.Now(), Outcome: OutcomeError, ErrorKind: "cancelled"})
			return Result{Attempts: attempts}, &Cancelled{Stage: stage}
		default:
		}

		adapter, ok := lookup(id)
		if !ok {
			attempts = append(attempts, Attempt{
				ModelID: id, StartedAt: time.Now(), EndedAt: time.Now(),
				Outcome: OutcomeSkippedUnhealthy, ErrorKind: "no_adapter",
			})
			continue
		}

		if outcome, skip := policy.evaluate(id); skip {
			if outcome == OutcomeSkippedPrivacy {
				skippedPrivacyCount++
			}
			attempts = append(attempts, Attempt{ModelID: id, StartedAt: time.Now(), EndedAt: time.Now(), Outcome: outcome})
			continue
		}

		start := time.Now()
		genResult, err := adapter.Generate(ctx, prompt, params)
		end := time.Now()

		if err != nil {
			kind := errorKindOf(err)
			attempts = append(attempts, Attempt{
				ModelID: id, StartedAt: start, EndedAt: end,
				Outcome: OutcomeError, ErrorKind: kind,
			})
			L_trace("fallback: attempt failed", "stage", stage, "model_id", id, "error_kind", kind)
			if policy.OnAttempt != nil {
				policy.OnAttempt(id, OutcomeError, kind)
			}
			continue
		}

		attempts = append(attempts, Attempt{
			ModelID: id, StartedAt: start, EndedAt: end,
			Outcome: OutcomeOK, TokensIn: genResult.TokensIn, TokensOut: genResult.TokensOut,
			Preview: preview(genResult.Text),
		})
		if policy.OnAttempt != nil {
			policy.OnAttempt(id, OutcomeOK, "")
		}
		return Result{Text: genResult.Text, TokensIn: genResult.TokensIn, TokensOut: genResult.TokensOut, Attempts: attempts}, nil
	}

	if skippedPrivacyCount == len(chain) && len(chain) > 0 {
		return Result{Attempts: attempts}, &PIINoViableModel{Stage: stage}
	}
	return Result{Attempts: attempts}, &AllFailed{Stage: stage, Attempts: attempts}
}

func errorKindOf(err error) string {
	if callErr, ok := provider.AsCallError(err); ok {
		return string(callErr.Kind)
	}
	return "protocol"
}

const previewMaxLen = 200

func preview(text string) string {
	if len(text) <= previewMaxLen {
		return text
	}
	return text[:previewMaxLen]
}
