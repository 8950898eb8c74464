package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/crag-go/internal/pipeline"
	"github.com/54b3r/crag-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// AnswerTimeout bounds one /api/answer pipeline run end to end.
	// Defaults to 5 minutes — a run can loop through several model calls.
	AnswerTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer if nil.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer if nil.
	MetricsGatherer prometheus.Gatherer
}

// answerer is the interface handleAnswer calls to run the pipeline.
// *pipeline.Pipeline satisfies it; tests inject a fake.
type answerer interface {
	// Answer runs one full pipeline run for the question.
	Answer(ctx context.Context, question string) (*pipeline.Result, error)
}

// Server is the HTTP server that exposes the answer pipeline.
type Server struct {
	// answerer runs pipeline runs for /api/answer.
	answerer answerer
	// runs persists completed runs; nil disables run history endpoints.
	runs store.RunStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// metrics holds the Prometheus metrics owned by this server.
	metrics *serverMetrics
}

// answerRequest is the JSON body for POST /api/answer.
type answerRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
}

// answerResponse is the JSON response for POST /api/answer.
type answerResponse struct {
	// Answer is the final answer text.
	Answer string `json:"answer"`
	// Route is the retrieval route the run used.
	Route string `json:"route"`
	// Retries is the retry budget consumed by the run.
	Retries int `json:"retries"`
	// State is the terminal state reached: "done" or "exhausted".
	State string `json:"state"`
	// RunID identifies the run in logs, traces, and run history.
	RunID string `json:"run_id"`
	// DurationMS is the wall-clock run time in milliseconds.
	DurationMS int64 `json:"duration_ms"`
}

// runSummary is one entry in the GET /api/runs response.
type runSummary struct {
	// ID is the run's UUID.
	ID string `json:"id"`
	// Question is the user's original question.
	Question string `json:"question"`
	// Answer is the final answer text.
	Answer string `json:"answer"`
	// Route is the retrieval route the run used.
	Route string `json:"route"`
	// Retries is the retry budget consumed.
	Retries int `json:"retries"`
	// State is the terminal state reached.
	State string `json:"state"`
	// DurationMS is the wall-clock run time in milliseconds.
	DurationMS int64 `json:"duration_ms"`
	// CreatedAt is the RFC 3339 persistence timestamp.
	CreatedAt string `json:"created_at"`
}
