package fabric

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultMaxPlanSteps bounds a parsed plan when the caller doesn't
// override it (§4.7).
const DefaultMaxPlanSteps = 12

// ParseError is the plan_parse_failed(raw) error kind: the planner's
// output could not be recovered as a JSON array of ≤ maxSteps strings.
type ParseError struct{ Raw string }

func (e *ParseError) Error() string { return fmt.Sprintf("plan_parse_failed(%s)", e.Raw) }

// parsePlan strips leading/trailing prose around a JSON array and decodes
// it as a list of step strings, capped at maxSteps. Any deviation —
// unparseable JSON, a non-array top level, a non-string element, or too
// many steps — is reported as *ParseError so the orchestrator can degrade
// to Direct.
func parsePlan(raw string, maxSteps int) ([]string, error) {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxPlanSteps
	}

	candidate := extractJSONArray(raw)
	if candidate == "" {
		return nil, &ParseError{Raw: raw}
	}

	var steps []string
	if err := json.Unmarshal([]byte(candidate), &steps); err != nil {
		return nil, &ParseError{Raw: raw}
	}
	if len(steps) == 0 || len(steps) > maxSteps {
		return nil, &ParseError{Raw: raw}
	}
	for _, s := range steps {
		if strings.TrimSpace(s) == "" {
			return nil, &ParseError{Raw: raw}
		}
	}

	return steps, nil
}

// extractJSONArray returns the substring of raw spanning its first '[' to
// its last ']', stripping any leading/trailing prose a chatty model adds.
// Returns "" if no bracket pair is found.
func extractJSONArray(raw string) string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < start {
		return ""
	}
	return raw[start : end+1]
}
