package pipeline

import "fmt"

// ExhaustedRetriesError marks exhaustion of the shared retry budget. It is a
// failure of the loop budget, not of any single call, and it is never
// surfaced to the caller of Answer — exhaustion always resolves to the
// configured fallback answer, because "I don't know" is itself a valid
// terminal answer. The type exists so logs and traces carry a typed cause.
type ExhaustedRetriesError struct {
	// Retries is the number of loop-back transitions taken before giving up.
	Retries int
	// LastState is the non-terminal state the budget ran out in.
	LastState State
}

// Error implements the error interface.
func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("pipeline: retry budget exhausted after %d retries in state %q", e.Retries, e.LastState)
}
