package rag

import "fmt"

// RetrievalError is the typed failure surfaced when a retrieval backend
// remains unreachable after transport-level retries. The pipeline treats it
// as a hard infrastructure failure: unlike an empty result set, it aborts
// the run rather than triggering a rewrite cycle.
type RetrievalError struct {
	// Backend names the retrieval backend that failed ("qdrant", "websearch").
	Backend string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *RetrievalError) Error() string {
	return fmt.Sprintf("rag: %s retrieval failed: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *RetrievalError) Unwrap() error { return e.Err }
