package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/crag-go/internal/logging"
)

// probeTimeout bounds each dependency probe so /api/ready answers promptly
// even when a dependency is hanging rather than refusing connections.
const probeTimeout = 5 * time.Second

// Pinger reports the reachability of one external dependency. Ping returns
// nil when the dependency is healthy; Name is the label used in readiness
// responses (e.g. "ollama", "qdrant"). Implementations must be safe for
// concurrent use.
type Pinger interface {
	Ping(ctx context.Context) error
	Name() string
}

// MultiPinger folds several Pingers into one, failing on the first probe
// that does.
type MultiPinger struct {
	pingers []Pinger
}

// NewMultiPinger constructs a MultiPinger over the given probes.
func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

// Ping probes each dependency in order and returns the first failure,
// prefixed with the failing dependency's name, or nil when all succeed.
func (m *MultiPinger) Ping(ctx context.Context) error {
	for _, p := range m.pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}

// Name identifies the aggregate probe in logs.
func (m *MultiPinger) Name() string { return "multi" }

// readyCheck is one dependency's probe result within a readiness response.
type readyCheck struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
	// Error holds the failure reason; omitted when OK.
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body of GET /api/ready. Ready is true only when
// every check passed.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// runProbes executes every registered probe with its own timeout and returns
// the per-dependency results plus the overall verdict.
func (s *Server) runProbes(ctx context.Context, log *slog.Logger) ([]readyCheck, bool) {
	checks := make([]readyCheck, 0, len(s.pingers))
	ready := true

	for _, p := range s.pingers {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := p.Ping(probeCtx)
		cancel()

		check := readyCheck{Name: p.Name(), OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			ready = false
			log.Warn("readiness probe failed",
				slog.String("dependency", p.Name()),
				slog.Any("error", err),
			)
		}
		checks = append(checks, check)
	}

	return checks, ready
}

// handleReady serves GET /api/ready. It reflects live dependency state:
// 200 when every probe passes, 503 otherwise. /api/health stays 200 either
// way — it only answers "is the process up".
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks, ready := s.runProbes(r.Context(), log)

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(readyResponse{Ready: ready, Checks: checks}); err != nil {
		log.Error("ready encode error", slog.Any("error", err))
	}
}
