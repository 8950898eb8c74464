// Package server exposes the answer pipeline over HTTP: one endpoint that
// runs a full pipeline run, read-only run history, health and readiness
// probes, and a Prometheus metrics endpoint. Protected routes require a
// Bearer token and are rate limited per client IP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/crag-go/internal/logging"
	"github.com/54b3r/crag-go/internal/store"
)

// Default server configuration values applied by New when unset.
const (
	defaultHost            = "127.0.0.1"
	defaultPort            = 8080
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 10 * time.Minute
	defaultShutdownTimeout = 15 * time.Second
	defaultAnswerTimeout   = 5 * time.Minute
)

// New constructs a Server around the given answerer and run store.
// runs may be nil; run history endpoints then return 404.
func New(a answerer, runs store.RunStore, cfg *Config) (*Server, error) {
	if a == nil {
		return nil, errors.New("server: answerer must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	applyDefaults(cfg)

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	if cfg.APIKey == "" {
		log.Warn("API key not configured — authentication is DISABLED")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)

	s := &Server{
		answerer: a,
		runs:     runs,
		cfg:      cfg,
		log:      log,
		pingers:  cfg.Pingers,
		stopRL:   stopRL,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
	}

	mux := http.NewServeMux()

	// Unprotected probes — load balancers and orchestrators hit these
	// without credentials.
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	// Protected API routes: auth, then rate limit, then metrics.
	protect := func(name string, h http.Handler) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(s.instrument(name, h)))
	}
	mux.Handle("POST /api/answer", protect("answer", http.HandlerFunc(s.handleAnswer)))
	mux.Handle("GET /api/runs", protect("runs", http.HandlerFunc(s.handleRuns)))
	mux.Handle("GET /api/runs/{id}", protect("run", http.HandlerFunc(s.handleRunByID)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// applyDefaults fills zero-valued Config fields in place.
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.AnswerTimeout == 0 {
		cfg.AnswerTimeout = defaultAnswerTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
}

// Addr returns the address the server will bind to.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully within the configured shutdown timeout. It blocks until the
// server has stopped.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down", slog.Duration("timeout", s.cfg.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.stopRL()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return <-errCh
}

// handleHealth handles GET /api/health for liveness checks.
// It always returns 200 — it reports only that the process is serving,
// not that dependencies are reachable (use /api/ready for that).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		logging.FromContext(r.Context()).Error("health encode error", slog.Any("error", err))
	}
}
