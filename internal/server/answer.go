package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/54b3r/crag-go/internal/logging"
	"github.com/54b3r/crag-go/internal/store"
)

// maxQuestionBytes bounds the request body to prevent memory abuse.
const maxQuestionBytes = 64 << 10 // 64 KiB

// defaultRunsLimit is the number of runs returned by GET /api/runs when no
// limit query parameter is supplied.
const defaultRunsLimit = 20

// handleAnswer handles POST /api/answer. It runs one full pipeline run for
// the question in the request body and returns the final answer together with
// the run's route, retry count, and terminal state. Completed runs are
// persisted to the run store on a best-effort basis.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req answerRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQuestionBytes))
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question must not be empty", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AnswerTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.answerer.Answer(ctx, req.Question)
	elapsed := time.Since(start)

	if err != nil {
		outcome := "error"
		status := http.StatusBadGateway
		msg := "answer pipeline failed"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
			status = http.StatusGatewayTimeout
			msg = "answer timed out"
		}
		s.metrics.answerRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.answerDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
		log.Error("answer failed",
			slog.String("outcome", outcome),
			slog.Duration("duration", elapsed),
			slog.Any("error", err),
		)
		http.Error(w, msg, status)
		return
	}

	s.metrics.answerRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.answerDurationSeconds.WithLabelValues("ok").Observe(elapsed.Seconds())

	s.persistRun(r.Context(), req.Question, res.RunID, res.Answer, string(res.Route), res.Retries, string(res.State), res.Duration)

	respondJSON(w, log, http.StatusOK, answerResponse{
		Answer:     res.Answer,
		Route:      string(res.Route),
		Retries:    res.Retries,
		State:      string(res.State),
		RunID:      res.RunID,
		DurationMS: res.Duration.Milliseconds(),
	})
}

// persistRun records a completed run in the run store. Persistence failures
// are logged but never surfaced to the client — the answer already succeeded.
func (s *Server) persistRun(ctx context.Context, question, id, answer, route string, retries int, state string, d time.Duration) {
	if s.runs == nil {
		return
	}
	err := s.runs.Record(ctx, store.Run{
		ID:       id,
		Question: question,
		Answer:   answer,
		Route:    route,
		Retries:  retries,
		State:    state,
		Duration: d,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("failed to persist run",
			slog.String("run_id", id),
			slog.Any("error", err),
		)
	}
}

// handleRuns handles GET /api/runs. It returns the most recent runs,
// newest-first. The optional ?limit=N query parameter caps the result size.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.runs == nil {
		http.Error(w, "run history not enabled", http.StatusNotFound)
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		log.Error("failed to list runs", slog.Any("error", err))
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}

	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunSummary(run))
	}
	respondJSON(w, log, http.StatusOK, out)
}

// handleRunByID handles GET /api/runs/{id}. It returns a single persisted run
// or 404 if the ID is unknown.
func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.runs == nil {
		http.Error(w, "run history not enabled", http.StatusNotFound)
		return
	}

	id := r.PathValue("id")
	run, err := s.runs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		log.Error("failed to load run", slog.String("run_id", id), slog.Any("error", err))
		http.Error(w, "failed to load run", http.StatusInternalServerError)
		return
	}

	respondJSON(w, log, http.StatusOK, toRunSummary(run))
}

// toRunSummary converts a persisted run into its JSON representation.
func toRunSummary(run store.Run) runSummary {
	return runSummary{
		ID:         run.ID,
		Question:   run.Question,
		Answer:     run.Answer,
		Route:      run.Route,
		Retries:    run.Retries,
		State:      run.State,
		DurationMS: run.Duration.Milliseconds(),
		CreatedAt:  run.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// respondJSON writes v as a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}
