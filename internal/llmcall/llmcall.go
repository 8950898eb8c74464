// Package llmcall wraps a chat model behind a single pooled caller that
// every judging, routing, rewriting, and generation call goes through.
// The caller enforces a shared rate limit (the LLM endpoint is a shared,
// rate-limited resource), a per-attempt timeout, and bounded exponential
// backoff on transient failures. Callers above this layer only ever see a
// hard error after the transport retries are exhausted.
package llmcall

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/54b3r/crag-go/internal/logging"
)

// ChatModel is the minimal surface of an eino chat model the caller needs.
// model.BaseChatModel and model.ToolCallingChatModel both satisfy it;
// tests inject a fake.
type ChatModel interface {
	// Generate produces a single complete response for the input messages.
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Config holds the transport-level settings for a Caller.
type Config struct {
	// Timeout is the deadline applied to each individual Generate attempt.
	// Defaults to 60s if zero.
	Timeout time.Duration

	// MaxAttempts is the total number of Generate attempts per call,
	// including the first. Defaults to 3 if zero.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry; subsequent delays
	// grow exponentially. Defaults to 500ms if zero.
	InitialBackoff time.Duration

	// RPS is the sustained call rate allowed against the LLM endpoint,
	// shared across all concurrent pipeline runs. Defaults to 5 if zero.
	RPS float64

	// Burst is the maximum instantaneous burst of calls. Defaults to 10 if zero.
	Burst int
}

// Caller is the shared, concurrency-safe gateway to the chat model.
// A single Caller is constructed at startup and handed to every pipeline
// component that talks to the LLM.
type Caller struct {
	// model is the underlying chat model.
	model ChatModel

	// limiter throttles calls across all concurrent runs.
	limiter *rate.Limiter

	// cfg holds the resolved transport configuration.
	cfg Config
}

// New constructs a Caller around the given chat model.
func New(m ChatModel, cfg *Config) (*Caller, error) {
	if m == nil {
		return nil, fmt.Errorf("llmcall: chat model must not be nil")
	}
	resolved := Config{}
	if cfg != nil {
		resolved = *cfg
	}
	if resolved.Timeout <= 0 {
		resolved.Timeout = 60 * time.Second
	}
	if resolved.MaxAttempts <= 0 {
		resolved.MaxAttempts = 3
	}
	if resolved.InitialBackoff <= 0 {
		resolved.InitialBackoff = 500 * time.Millisecond
	}
	if resolved.RPS <= 0 {
		resolved.RPS = 5
	}
	if resolved.Burst <= 0 {
		resolved.Burst = 10
	}

	return &Caller{
		model:   m,
		limiter: rate.NewLimiter(rate.Limit(resolved.RPS), resolved.Burst),
		cfg:     resolved,
	}, nil
}

// Generate sends the messages to the chat model, waiting on the shared rate
// limiter first. Transient failures (including per-attempt timeouts) are
// retried with exponential backoff up to MaxAttempts; the last error is
// returned once attempts are exhausted. Cancellation of ctx stops the call
// immediately — a cancelled context is never retried.
func (c *Caller) Generate(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("llmcall: rate limiter wait: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(c.cfg.MaxAttempts-1)), //nolint:gosec // MaxAttempts is validated positive
		ctx,
	)

	attempt := 0
	resp, err := backoff.RetryWithData(func() (*schema.Message, error) {
		attempt++

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		msg, genErr := c.model.Generate(attemptCtx, msgs)
		if genErr != nil {
			// The parent context ending means the run was cancelled — do not
			// burn further attempts against a caller that has gone away.
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			logging.FromContext(ctx).Warn("llmcall: generate attempt failed",
				slog.Int("attempt", attempt),
				slog.Any("error", genErr),
			)
			return nil, genErr
		}
		if msg == nil {
			return nil, fmt.Errorf("model returned nil message")
		}
		return msg, nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("llmcall: generate failed after %d attempt(s): %w", attempt, err)
	}

	return resp, nil
}

// GenerateText is a convenience wrapper that returns the trimmed text content
// of the model's response.
func (c *Caller) GenerateText(ctx context.Context, msgs []*schema.Message) (string, error) {
	resp, err := c.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
