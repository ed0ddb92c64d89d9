package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/auracoredynamics/aurarouter/internal/provider"
)

type scriptedAdapter struct {
	id     string
	result provider.GenerateResult
	err    error
}

func (a *scriptedAdapter) ID() string                 { return a.id }
func (a *scriptedAdapter) Locality() provider.Locality { return provider.LocalityLocal }
func (a *scriptedAdapter) Tags() []string              { return nil }
func (a *scriptedAdapter) Generate(ctx context.Context, prompt string, params provider.Params) (provider.GenerateResult, error) {
	return a.result, a.err
}
func (a *scriptedAdapter) HealthProbe(ctx context.Context) (provider.Health, error) {
	return provider.Health{State: provider.HealthHealthy}, nil
}
func (a *scriptedAdapter) Close() error { return nil }

func lookupFrom(adapters map[string]provider.Adapter) Lookup {
	return func(id string) (provider.Adapter, bool) {
		a, ok := adapters[id]
		return a, ok
	}
}

func TestExecuteCascadeFailure(t *testing.T) {
	adapters := map[string]provider.Adapter{
		"A": &scriptedAdapter{id: "A", err: provider.NewHTTPStatusError(500, "boom")},
		"B": &scriptedAdapter{id: "B", err: provider.NewTimeoutError(errors.New("deadline exceeded"))},
		"C": &scriptedAdapter{id: "C", result: provider.GenerateResult{Text: "hi"}},
	}

	result, err := Execute(context.Background(), "execute", []string{"A", "B", "C"}, lookupFrom(adapters), "do thing", provider.Params{}, SkipPolicy{})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Text != "hi" {
		t.Errorf("Text = %q, want hi", result.Text)
	}
	if len(result.Attempts) != 3 {
		t.Fatalf("len(Attempts) = %d, want 3", len(result.Attempts))
	}
	if result.Attempts[0].Outcome != OutcomeError || result.Attempts[0].ErrorKind != "http_status" {
		t.Errorf("Attempts[0] = %+v, want error/http_status", result.Attempts[0])
	}
	if result.Attempts[1].Outcome != OutcomeError || result.Attempts[1].ErrorKind != "timeout" {
		t.Errorf("Attempts[1] = %+v, want error/timeout", result.Attempts[1])
	}
	if result.Attempts[2].Outcome != OutcomeOK {
		t.Errorf("Attempts[2] = %+v, want ok", result.Attempts[2])
	}
}

func TestExecuteAllFailed(t *testing.T) {
	adapters := map[string]provider.Adapter{
		"A": &scriptedAdapter{id: "A", err: provider.NewNetworkError(errors.New("connection refused"))},
	}

	_, err := Execute(context.Background(), "execute", []string{"A"}, lookupFrom(adapters), "x", provider.Params{}, SkipPolicy{})
	var allFailed *AllFailed
	if !errors.As(err, &allFailed) {
		t.Fatalf("err = %v, want *AllFailed", err)
	}
	if allFailed.Stage != "execute" {
		t.Errorf("Stage = %q, want execute", allFailed.Stage)
	}
}

func TestExecutePrivacySkip(t *testing.T) {
	adapters := map[string]provider.Adapter{
		"cloud_gem": &scriptedAdapter{id: "cloud_gem", result: provider.GenerateResult{Text: "cloud reply"}},
		"local_q":   &scriptedAdapter{id: "local_q", result: provider.GenerateResult{Text: "local reply"}},
	}
	policy := SkipPolicy{
		Privacy: func(id string) bool { return id == "cloud_gem" },
	}

	result, err := Execute(context.Background(), "execute", []string{"cloud_gem", "local_q"}, lookupFrom(adapters), "john@example.com", provider.Params{}, policy)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Text != "local reply" {
		t.Errorf("Text = %q, want local reply", result.Text)
	}
	if result.Attempts[0].Outcome != OutcomeSkippedPrivacy {
		t.Errorf("Attempts[0].Outcome = %v, want skipped_privacy", result.Attempts[0].Outcome)
	}
}

func TestExecutePIINoViableModel(t *testing.T) {
	adapters := map[string]provider.Adapter{
		"cloud_gem": &scriptedAdapter{id: "cloud_gem"},
	}
	policy := SkipPolicy{Privacy: func(id string) bool { return true }}

	_, err := Execute(context.Background(), "execute", []string{"cloud_gem"}, lookupFrom(adapters), "john@example.com", provider.Params{}, policy)
	var piiErr *PIINoViableModel
	if !errors.As(err, &piiErr) {
		t.Fatalf("err = %v, want *PIINoViableModel", err)
	}
}

func TestExecuteMissingAdapter(t *testing.T) {
	result, err := Execute(context.Background(), "execute", []string{"ghost"}, lookupFrom(nil), "x", provider.Params{}, SkipPolicy{})
	if err == nil {
		t.Fatalf("Execute returned nil error, want all_failed")
	}
	if result.Attempts[0].Outcome != OutcomeSkippedUnhealthy || result.Attempts[0].ErrorKind != "no_adapter" {
		t.Errorf("Attempts[0] = %+v, want skipped_unhealthy/no_adapter", result.Attempts[0])
	}
}

func TestExecuteOnAttemptNotifiesSuccessAndFailure(t *testing.T) {
	adapters := map[string]provider.Adapter{
		"A": &scriptedAdapter{id: "A", err: provider.NewTimeoutError(errors.New("deadline exceeded"))},
		"B": &scriptedAdapter{id: "B", result: provider.GenerateResult{Text: "hi"}},
	}

	type notice struct {
		id        string
		outcome   Outcome
		errorKind string
	}
	var notices []notice
	policy := SkipPolicy{
		OnAttempt: func(id string, outcome Outcome, errorKind string) {
			notices = append(notices, notice{id, outcome, errorKind})
		},
	}

	_, err := Execute(context.Background(), "execute", []string{"A", "B"}, lookupFrom(adapters), "x", provider.Params{}, policy)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(notices) != 2 {
		t.Fatalf("len(notices) = %d, want 2", len(notices))
	}
	if notices[0] != (notice{"A", OutcomeError, "timeout"}) {
		t.Errorf("notices[0] = %+v, want A/error/timeout", notices[0])
	}
	if notices[1] != (notice{"B", OutcomeOK, ""}) {
		t.Errorf("notices[1] = %+v, want B/ok/empty", notices[1])
	}
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Execute(ctx, "execute", []string{"A"}, lookupFrom(nil), "x", provider.Params{}, SkipPolicy{})
	var cancelled *Cancelled
	if !errors.As(err, &cancelled) {
		t.Fatalf("err = %v, want *Cancelled", err)
	}
}
