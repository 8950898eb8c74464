// Package judge implements the binary grading calls the pipeline relies on:
// document relevance, answer groundedness, and answer sufficiency. All three
// share one strict machine-parseable decision contract — a judge response is
// either {"decision": "yes"} or {"decision": "no"}, and anything else is a
// typed *GradingError, never a best-effort interpretation.
package judge

import (
	"encoding/json"
	"fmt"

	"github.com/54b3r/crag-go/internal/llmcall"
)

// GradingError is the typed failure for a judge response that deviates from
// the closed decision schema. Callers apply their own fail-closed policy:
// a document whose grading fails is dropped; a groundedness or sufficiency
// check that fails is treated as "no".
type GradingError struct {
	// Raw is the judge output that failed to parse.
	Raw string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *GradingError) Error() string {
	return fmt.Sprintf("judge: malformed decision: %v", e.Err)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *GradingError) Unwrap() error { return e.Err }

// decision is the strict JSON schema every judge response must match.
type decision struct {
	Decision string `json:"decision"`
}

// parseDecision converts a raw judge response into a boolean verdict.
// Only the exact values "yes" and "no" are accepted.
func parseDecision(raw string) (bool, error) {
	var d decision
	if err := json.Unmarshal([]byte(llmcall.TrimCodeFence(raw)), &d); err != nil {
		return false, &GradingError{Raw: raw, Err: err}
	}
	switch d.Decision {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	default:
		return false, &GradingError{Raw: raw, Err: fmt.Errorf("decision %q outside {yes, no}", d.Decision)}
	}
}

// decisionContract is the response-format instruction appended to every
// judge prompt.
const decisionContract = `Respond with ONLY a JSON object in this exact shape — no markdown fencing,
no explanation:

{"decision": "yes"}

or

{"decision": "no"}`
