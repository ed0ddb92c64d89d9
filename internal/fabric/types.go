// Package fabric implements the Pipeline Orchestrator of §4.7: the
// Classify → (Plan → Execute-Steps | Execute) state machine, composing
// attempts from the Fallback Executor into a DAG returned to the caller.
package fabric

import (
	"github.com/auracoredynamics/aurarouter/internal/fallback"
)

// Classification is the closed classifier output set (§4.7). Any other
// classifier output normalizes to Direct.
type Classification string

const (
	ClassificationDirect    Classification = "direct"
	ClassificationMultiStep Classification = "multi_step"
)

// NodeStatus is a DAGNode's terminal or in-flight state.
type NodeStatus string

const (
	NodeStatusPending NodeStatus = "pending"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusFailed  NodeStatus = "failed"
	NodeStatusSkipped NodeStatus = "skipped"
)

// DAGNode is one stage of the execution DAG (§3). Children are nested
// directly rather than referenced by id, which is the "in practice" tree
// shape the glossary describes while still carrying a stable ID for
// external consumers that want to address a node.
type DAGNode struct {
	ID            string
	Label         string
	Role          string
	Attempts      []fallback.Attempt
	Status        NodeStatus
	ResultPreview string
	Children      []*DAGNode
}

// ExecutionResult is the top-level return value of Fabric.Execute.
type ExecutionResult struct {
	Classification Classification
	Plan           []string
	FinalOutput    string
	DAG            *DAGNode
}
