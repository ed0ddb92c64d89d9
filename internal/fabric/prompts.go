package fabric

import "fmt"

// classifierPrompt builds the intent-classification prompt. Exact phrasing
// is an implementation choice, not a wire contract: this core asks for one
// bare word and treats anything else as direct.
func classifierPrompt(task string) string {
	return fmt.Sprintf(
		"Classify the following task as exactly one word: \"direct\" if it can be "+
			"answered in a single response, or \"multi_step\" if it requires breaking "+
			"into sequential steps. Reply with only that one word.\n\nTask: %s",
		task,
	)
}

// plannerPrompt asks for a JSON array of step strings, tolerant-parsed by
// parsePlan.
func plannerPrompt(task string, maxSteps int) string {
	return fmt.Sprintf(
		"Break the following task into at most %d sequential steps. "+
			"Respond with ONLY a JSON array of strings, one per step, no other text.\n\nTask: %s",
		maxSteps, task,
	)
}
