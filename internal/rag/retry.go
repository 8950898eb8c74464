package rag

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/54b3r/crag-go/internal/logging"
)

// RetryConfig holds the transport retry settings for a RetryingRetriever.
type RetryConfig struct {
	// MaxAttempts is the total number of retrieval attempts per call,
	// including the first. Defaults to 3 if zero.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry; subsequent delays
	// grow exponentially. Defaults to 250ms if zero.
	InitialBackoff time.Duration
}

// RetryingRetriever wraps another Retriever with bounded exponential backoff.
// Transient backend failures are retried at this transport layer; only after
// the attempts are exhausted is the failure promoted to a *RetrievalError
// and surfaced to the pipeline. Empty result sets pass straight through —
// they are a signal, not a failure.
type RetryingRetriever struct {
	// inner is the wrapped retrieval backend.
	inner Retriever

	// backend labels the wrapped backend in errors and logs.
	backend string

	// cfg holds the resolved retry configuration.
	cfg RetryConfig
}

// NewRetryingRetriever wraps inner with the given retry policy. backend is
// the label used in RetrievalError and log records.
func NewRetryingRetriever(inner Retriever, backend string, cfg *RetryConfig) *RetryingRetriever {
	resolved := RetryConfig{}
	if cfg != nil {
		resolved = *cfg
	}
	if resolved.MaxAttempts <= 0 {
		resolved.MaxAttempts = 3
	}
	if resolved.InitialBackoff <= 0 {
		resolved.InitialBackoff = 250 * time.Millisecond
	}
	return &RetryingRetriever{inner: inner, backend: backend, cfg: resolved}
}

// Retrieve delegates to the wrapped retriever, retrying transient failures.
// A cancelled context is never retried.
func (r *RetryingRetriever) Retrieve(ctx context.Context, question string, topK int) ([]Document, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.InitialBackoff
	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(r.cfg.MaxAttempts-1)), //nolint:gosec // MaxAttempts is validated positive
		ctx,
	)

	attempt := 0
	docs, err := backoff.RetryWithData(func() ([]Document, error) {
		attempt++
		result, retErr := r.inner.Retrieve(ctx, question, topK)
		if retErr != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			logging.FromContext(ctx).Warn("rag: retrieval attempt failed",
				slog.String("backend", r.backend),
				slog.Int("attempt", attempt),
				slog.Any("error", retErr),
			)
			return nil, retErr
		}
		return result, nil
	}, policy)
	if err != nil {
		return nil, &RetrievalError{Backend: r.backend, Err: err}
	}

	return docs, nil
}
