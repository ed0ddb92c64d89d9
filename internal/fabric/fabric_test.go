package fabric

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/auracoredynamics/aurarouter/internal/config"
	"github.com/auracoredynamics/aurarouter/internal/fallback"
	"github.com/auracoredynamics/aurarouter/internal/health"
	"github.com/auracoredynamics/aurarouter/internal/provider"
	"github.com/auracoredynamics/aurarouter/internal/registry"
)

// scriptedAdapter is a fixed-response provider.Adapter for pipeline tests,
// mirroring the fallback package's own test double (kept separate since
// fabric tests exercise the orchestrator, not just one stage).
type scriptedAdapter struct {
	id       string
	locality provider.Locality
	tags     []string
	text     string
	err      error
}

func (a *scriptedAdapter) ID() string                 { return a.id }
func (a *scriptedAdapter) Locality() provider.Locality { return a.locality }
func (a *scriptedAdapter) Tags() []string              { return a.tags }
func (a *scriptedAdapter) Generate(ctx context.Context, prompt string, params provider.Params) (provider.GenerateResult, error) {
	if a.err != nil {
		return provider.GenerateResult{}, a.err
	}
	return provider.GenerateResult{Text: a.text}, nil
}
func (a *scriptedAdapter) HealthProbe(ctx context.Context) (provider.Health, error) {
	return provider.Health{State: provider.HealthHealthy}, nil
}
func (a *scriptedAdapter) Close() error { return nil }

// newTestFabric builds a Fabric whose config has the named models/roles
// (all "ollama" kind to satisfy validation) but whose live registry holds
// the caller-supplied scripted adapters, bypassing any network call.
func newTestFabric(t *testing.T, roles map[string][]string, adapters map[string]provider.Adapter, semanticVerbs map[string][]string) *Fabric {
	t.Helper()

	manifestModels := map[string]any{}
	for id := range adapters {
		manifestModels[id] = map[string]any{
			"provider_kind": "ollama",
			"endpoint":      "http://example.invalid",
			"model_name":    id,
		}
	}
	manifestRoles := map[string]any{}
	for role, ids := range roles {
		list := make([]any, len(ids))
		for i, id := range ids {
			list[i] = id
		}
		manifestRoles[role] = list
	}

	path := filepath.Join(t.TempDir(), "auraconfig.yaml")
	handle, err := config.LoadConfig(path, map[string]any{"models": manifestModels, "roles": manifestRoles})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	for role, syns := range semanticVerbs {
		handle.SetSemanticVerbs(role, syns)
	}

	reg := registry.NewFromAdapters(adapters)
	f, err := NewWithRegistry(handle, reg, "")
	if err != nil {
		t.Fatalf("NewWithRegistry: %v", err)
	}
	return f
}

func TestExecuteDirectLocalSuccess(t *testing.T) {
	f := newTestFabric(t,
		map[string][]string{"router": {"R"}, "reasoning": {"Rz"}, "coding": {"L"}},
		map[string]provider.Adapter{
			"R":  &scriptedAdapter{id: "R", locality: provider.LocalityLocal, text: "direct"},
			"Rz": &scriptedAdapter{id: "Rz", locality: provider.LocalityLocal, text: "unused"},
			"L":  &scriptedAdapter{id: "L", locality: provider.LocalityLocal, text: "4"},
		},
		nil,
	)

	result, err := f.Execute(context.Background(), "coding", "sum 2+2", "", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Classification != ClassificationDirect {
		t.Errorf("Classification = %v, want direct", result.Classification)
	}
	if result.FinalOutput != "4" {
		t.Errorf("FinalOutput = %q, want 4", result.FinalOutput)
	}
	if result.DAG.Label != "Classify" || len(result.DAG.Children) != 1 || result.DAG.Children[0].Label != "Execute" {
		t.Errorf("DAG shape unexpected: %+v", result.DAG)
	}
}

func TestExecuteCascadeFailureThenSuccess(t *testing.T) {
	f := newTestFabric(t,
		map[string][]string{"router": {"R"}, "reasoning": {"Rz"}, "coding": {"A", "B", "C"}},
		map[string]provider.Adapter{
			"R":  &scriptedAdapter{id: "R", locality: provider.LocalityLocal, text: "direct"},
			"Rz": &scriptedAdapter{id: "Rz", locality: provider.LocalityLocal},
			"A":  &scriptedAdapter{id: "A", locality: provider.LocalityLocal, err: provider.NewHTTPStatusError(500, "boom")},
			"B":  &scriptedAdapter{id: "B", locality: provider.LocalityLocal, err: provider.NewTimeoutError(errors.New("deadline exceeded"))},
			"C":  &scriptedAdapter{id: "C", locality: provider.LocalityLocal, text: "hi"},
		},
		nil,
	)

	result, err := f.Execute(context.Background(), "coding", "do something", "", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.FinalOutput != "hi" {
		t.Errorf("FinalOutput = %q, want hi", result.FinalOutput)
	}
	execNode := result.DAG.Children[0]
	if len(execNode.Attempts) != 3 {
		t.Fatalf("len(Attempts) = %d, want 3", len(execNode.Attempts))
	}
	if execNode.Attempts[0].ErrorKind != "http_status" || execNode.Attempts[1].ErrorKind != "timeout" {
		t.Errorf("attempts = %+v", execNode.Attempts)
	}
}

func TestExecuteMultiStep(t *testing.T) {
	f := newTestFabric(t,
		map[string][]string{"router": {"R"}, "reasoning": {"P"}, "coding": {"W"}},
		map[string]provider.Adapter{
			"R": &scriptedAdapter{id: "R", locality: provider.LocalityLocal, text: "multi_step"},
			"P": &scriptedAdapter{id: "P", locality: provider.LocalityLocal, text: `["step1","step2"]`},
			"W": &scriptedAdapter{id: "W", locality: provider.LocalityLocal, text: "ok"},
		},
		nil,
	)

	result, err := f.Execute(context.Background(), "coding", "multi-part task", "", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Classification != ClassificationMultiStep {
		t.Errorf("Classification = %v, want multi_step", result.Classification)
	}
	if len(result.Plan) != 2 {
		t.Fatalf("len(Plan) = %d, want 2", len(result.Plan))
	}
	planNode := result.DAG.Children[0]
	if planNode.Label != "Plan" || len(planNode.Children) != 2 {
		t.Fatalf("Plan node shape unexpected: %+v", planNode)
	}
	if planNode.Children[0].Label != "Step_1" || planNode.Children[1].Label != "Step_2" {
		t.Errorf("step labels = %q, %q", planNode.Children[0].Label, planNode.Children[1].Label)
	}
}

func TestExecutePIISkip(t *testing.T) {
	f := newTestFabric(t,
		map[string][]string{"router": {"R"}, "reasoning": {"Rz"}, "coding": {"cloud_gem", "local_q"}},
		map[string]provider.Adapter{
			"R":         &scriptedAdapter{id: "R", locality: provider.LocalityLocal, text: "direct"},
			"Rz":        &scriptedAdapter{id: "Rz", locality: provider.LocalityLocal},
			"cloud_gem": &scriptedAdapter{id: "cloud_gem", locality: provider.LocalityCloud, text: "cloud reply"},
			"local_q":   &scriptedAdapter{id: "local_q", locality: provider.LocalityLocal, text: "local reply"},
		},
		nil,
	)

	result, err := f.Execute(context.Background(), "coding", "email me at john@example.com", "", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	execNode := result.DAG.Children[0]
	if execNode.Attempts[0].Outcome != fallback.OutcomeSkippedPrivacy {
		t.Errorf("Attempts[0].Outcome = %v, want skipped_privacy", execNode.Attempts[0].Outcome)
	}
	if result.FinalOutput != "local reply" {
		t.Errorf("FinalOutput = %q, want local reply", result.FinalOutput)
	}
}

func TestExecutePlanParseDegradesToDirect(t *testing.T) {
	f := newTestFabric(t,
		map[string][]string{"router": {"R"}, "reasoning": {"P"}, "coding": {"W"}},
		map[string]provider.Adapter{
			"R": &scriptedAdapter{id: "R", locality: provider.LocalityLocal, text: "multi_step"},
			"P": &scriptedAdapter{id: "P", locality: provider.LocalityLocal, text: "I suggest step 1..."},
			"W": &scriptedAdapter{id: "W", locality: provider.LocalityLocal, text: "direct answer"},
		},
		nil,
	)

	result, err := f.Execute(context.Background(), "coding", "ambiguous task", "", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Classification != ClassificationDirect {
		t.Errorf("Classification = %v, want direct (degraded)", result.Classification)
	}
	if result.FinalOutput != "direct answer" {
		t.Errorf("FinalOutput = %q, want direct answer", result.FinalOutput)
	}
	planNode := result.DAG.Children[0]
	found := false
	for _, a := range planNode.Attempts {
		if a.ErrorKind == "plan_parse_failed" {
			found = true
		}
	}
	if !found {
		t.Errorf("Plan node attempts missing plan_parse_failed annotation: %+v", planNode.Attempts)
	}
	if len(planNode.Children) != 1 || planNode.Children[0].Label != "Execute" {
		t.Errorf("Plan node children unexpected: %+v", planNode.Children)
	}
}

func TestProviderStatusReflectsCooldownAfterFailures(t *testing.T) {
	f := newTestFabric(t,
		map[string][]string{"router": {"R"}, "reasoning": {"Rz"}, "coding": {"A", "C"}},
		map[string]provider.Adapter{
			"R":  &scriptedAdapter{id: "R", locality: provider.LocalityLocal, text: "direct"},
			"Rz": &scriptedAdapter{id: "Rz", locality: provider.LocalityLocal},
			"A":  &scriptedAdapter{id: "A", locality: provider.LocalityLocal, err: provider.NewTimeoutError(errors.New("deadline exceeded"))},
			"C":  &scriptedAdapter{id: "C", locality: provider.LocalityLocal, text: "hi"},
		},
		nil,
	)

	if _, err := f.Execute(context.Background(), "coding", "do something", "", nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	byID := map[string]health.ProviderStatus{}
	for _, s := range f.ProviderStatus() {
		byID[s.ModelID] = s
	}
	if a := byID["A"]; !a.InCooldown || a.ErrorCount != 1 {
		t.Errorf("A's status = %+v, want in-cooldown with count 1", a)
	}
	if c := byID["C"]; c.InCooldown {
		t.Errorf("C's status = %+v, want not in cooldown (it succeeded)", c)
	}
}

func TestExecuteRoleSynonym(t *testing.T) {
	f := newTestFabric(t,
		map[string][]string{"router": {"R"}, "reasoning": {"Rz"}, "coding": {"L"}},
		map[string]provider.Adapter{
			"R":  &scriptedAdapter{id: "R", locality: provider.LocalityLocal, text: "direct"},
			"Rz": &scriptedAdapter{id: "Rz", locality: provider.LocalityLocal},
			"L":  &scriptedAdapter{id: "L", locality: provider.LocalityLocal, text: "4"},
		},
		map[string][]string{"coding": {"programming"}},
	)

	result, err := f.Execute(context.Background(), "programming", "sum 2+2", "", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.FinalOutput != "4" {
		t.Errorf("FinalOutput = %q, want 4", result.FinalOutput)
	}
}
