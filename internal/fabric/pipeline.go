package fabric

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/auracoredynamics/aurarouter/internal/fallback"
	. "github.com/auracoredynamics/aurarouter/internal/logging"
	"github.com/auracoredynamics/aurarouter/internal/privacy"
	"github.com/auracoredynamics/aurarouter/internal/provider"
	"github.com/auracoredynamics/aurarouter/internal/role"
)

// Execute runs the Classify → (Plan → Execute-Steps | Execute) state
// machine of §4.7. execRole names the task-executing role; an empty
// string uses f.ExecRole (default "coding"). extra is appended context
// available to every stage's prompt. cancelCh, if non-nil, aborts the
// pipeline at the next checkpoint.
func (f *Fabric) Execute(ctx context.Context, execRole, task, extra string, cancelCh <-chan struct{}) (*ExecutionResult, error) {
	cfg := f.cfgHandle.Snapshot()

	if err := role.RequireRoles(cfg); err != nil {
		return nil, err
	}
	if execRole == "" {
		execRole = f.ExecRole
	}

	ctx, cancel := deriveContext(ctx, cancelCh, f.effectiveTimeoutSeconds())
	defer cancel()

	auditor := f.privacyAuditor()
	taskAudit := auditor.Audit(task)

	routerChain, _, err := role.Resolve(cfg, "router")
	if err != nil {
		return nil, err
	}

	classifyPrompt := classifierPrompt(joinContext(task, extra))
	classifyResult, classifyErr := f.runStage(ctx, "Classify", routerChain, classifyPrompt, taskAudit)

	classifyNode := &DAGNode{
		ID:       uuid.NewString(),
		Label:    "Classify",
		Role:     "router",
		Attempts: classifyResult.Attempts,
	}
	if classifyErr != nil {
		classifyNode.Status = statusFor(classifyErr)
		return &ExecutionResult{Classification: ClassificationDirect, DAG: classifyNode}, classifyErr
	}
	classifyNode.Status = NodeStatusSuccess
	classifyNode.ResultPreview = preview(classifyResult.Text)

	classification := normalizeClassification(classifyResult.Text)

	execChain, _, err := role.Resolve(cfg, execRole)
	if err != nil {
		classifyNode.Status = NodeStatusFailed
		return &ExecutionResult{Classification: classification, DAG: classifyNode}, err
	}

	if classification == ClassificationDirect {
		execNode, result, execErr := f.executeDirect(ctx, execRole, execChain, joinContext(task, extra), taskAudit)
		classifyNode.Children = []*DAGNode{execNode}
		if execErr != nil {
			return &ExecutionResult{Classification: classification, DAG: classifyNode}, execErr
		}
		return &ExecutionResult{Classification: classification, FinalOutput: result.Text, DAG: classifyNode}, nil
	}

	reasoningChain, _, err := role.Resolve(cfg, "reasoning")
	if err != nil {
		classifyNode.Status = NodeStatusFailed
		return &ExecutionResult{Classification: classification, DAG: classifyNode}, err
	}

	planNode, steps, planErr := f.runPlan(ctx, reasoningChain, task, extra, taskAudit)
	classifyNode.Children = []*DAGNode{planNode}

	if planErr != nil {
		// Only plan_parse_failed degrades to Direct, per §4.7; an
		// all_failed, pii_no_viable_model or cancelled error from the
		// Plan stage itself ends the pipeline here.
		if _, isParseErr := planErr.(*ParseError); !isParseErr {
			return &ExecutionResult{Classification: ClassificationDirect, DAG: classifyNode}, planErr
		}
		execNode, result, execErr := f.executeDirect(ctx, execRole, execChain, joinContext(task, extra), taskAudit)
		planNode.Children = append(planNode.Children, execNode)
		if execErr != nil {
			return &ExecutionResult{Classification: ClassificationDirect, DAG: classifyNode}, execErr
		}
		return &ExecutionResult{Classification: ClassificationDirect, FinalOutput: result.Text, DAG: classifyNode}, nil
	}

	runningContext := joinContext(task, extra)
	var finalOutput string
	for i, step := range steps {
		stepNode, result, stepErr := f.executeDirect(ctx, execRole, execChain, joinContext(step, runningContext), taskAudit)
		stepNode.Label = stepLabel(i + 1)
		planNode.Children = append(planNode.Children, stepNode)
		if stepErr != nil {
			return &ExecutionResult{Classification: classification, Plan: steps, DAG: classifyNode}, stepErr
		}
		finalOutput = result.Text
		runningContext = runningContext + "\n" + result.Text
	}

	return &ExecutionResult{Classification: classification, Plan: steps, FinalOutput: finalOutput, DAG: classifyNode}, nil
}

// runStage is the shared fallback.Execute invocation every stage funnels
// through, wiring the skip policy's three predicates in order.
func (f *Fabric) runStage(ctx context.Context, stage string, chain []string, prompt string, audit privacy.Result) (fallback.Result, error) {
	policy := fallback.SkipPolicy{
		Privacy:     f.privacySkip(audit),
		HealthCache: f.healthCacheSkip(),
		Budget:      f.Budget,
		OnAttempt:   f.onAttempt,
	}
	return fallback.Execute(ctx, stage, chain, f.registry.Get, prompt, provider.Params{}, policy)
}

func (f *Fabric) executeDirect(ctx context.Context, execRole string, chain []string, prompt string, audit privacy.Result) (*DAGNode, fallback.Result, error) {
	result, err := f.runStage(ctx, "Execute", chain, prompt, audit)
	node := &DAGNode{
		ID:       uuid.NewString(),
		Label:    "Execute",
		Role:     execRole,
		Attempts: result.Attempts,
	}
	if err != nil {
		node.Status = statusFor(err)
		return node, result, err
	}
	node.Status = NodeStatusSuccess
	node.ResultPreview = preview(result.Text)
	return node, result, nil
}

func (f *Fabric) runPlan(ctx context.Context, reasoningChain []string, task, extra string, audit privacy.Result) (*DAGNode, []string, error) {
	prompt := plannerPrompt(joinContext(task, extra), f.maxPlanSteps())
	result, err := f.runStage(ctx, "Plan", reasoningChain, prompt, audit)

	node := &DAGNode{
		ID:       uuid.NewString(),
		Label:    "Plan",
		Role:     "reasoning",
		Attempts: result.Attempts,
	}
	if err != nil {
		node.Status = statusFor(err)
		return node, nil, err
	}

	steps, parseErr := parsePlan(result.Text, f.maxPlanSteps())
	if parseErr != nil {
		node.Status = NodeStatusFailed
		node.Attempts = append(node.Attempts, fallback.Attempt{
			Outcome:   fallback.OutcomeError,
			ErrorKind: "plan_parse_failed",
		})
		L_info("fabric: plan parse failed, degrading to direct", "raw_preview", preview(result.Text))
		return node, nil, parseErr
	}

	node.Status = NodeStatusSuccess
	return node, steps, nil
}

func (f *Fabric) maxPlanSteps() int {
	if f.MaxPlanSteps > 0 {
		return f.MaxPlanSteps
	}
	return DefaultMaxPlanSteps
}

// privacySkip implements §4.5's downstream rule: when the prompt is
// flagged, a model is skipped unless it is local or carries the private
// tag.
func (f *Fabric) privacySkip(audit privacy.Result) func(string) bool {
	if !audit.PII {
		return nil
	}
	return func(id string) bool {
		adapter, ok := f.registry.Get(id)
		if !ok {
			return false
		}
		if adapter.Locality() == provider.LocalityLocal {
			return false
		}
		for _, tag := range adapter.Tags() {
			if tag == "private" {
				return false
			}
		}
		return true
	}
}

// healthCacheSkip consults the TTL cache; a miss is treated as healthy
// (no inline probe), per §4.8.
func (f *Fabric) healthCacheSkip() func(string) bool {
	return func(id string) bool {
		status, ok := f.cache.Get(id)
		if !ok {
			return false
		}
		return status.State == "down"
	}
}

// cooldownKinds is the subset of provider.ErrorKind that escalates a
// model's backoff window (§6): transient failures a later attempt might
// clear on its own, plus auth, which won't clear soon but still shouldn't
// be retried every single request.
var cooldownKinds = map[string]bool{
	string(provider.ErrorKindNetwork):    true,
	string(provider.ErrorKindTimeout):    true,
	string(provider.ErrorKindHTTPStatus): true,
	string(provider.ErrorKindAuth):       true,
}

// onAttempt feeds the Fallback Executor's per-attempt outcome into the
// health cache's cooldown bookkeeping: failures of a cooldown-worthy kind
// escalate id's backoff, a success clears it.
func (f *Fabric) onAttempt(id string, outcome fallback.Outcome, errorKind string) {
	if outcome == fallback.OutcomeOK {
		f.cache.ClearCooldown(id)
		return
	}
	if outcome == fallback.OutcomeError && cooldownKinds[errorKind] {
		f.cache.MarkCooldown(id, errorKind)
	}
}

func statusFor(err error) NodeStatus {
	switch err.(type) {
	case *fallback.Cancelled:
		return NodeStatusSkipped
	default:
		return NodeStatusFailed
	}
}

func joinContext(primary, extra string) string {
	if extra == "" {
		return primary
	}
	return primary + "\n\n" + extra
}

func stepLabel(n int) string {
	return "Step_" + strconv.Itoa(n)
}

func preview(text string) string {
	const maxLen = 200
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen]
}
