// Package pipeline implements the self-correcting answer loop: route the
// question, retrieve and grade evidence, generate a candidate answer, and
// verify it for grounding and sufficiency, looping back with a rewritten
// query or a regeneration until the answer is accepted or the shared retry
// budget runs out. The orchestrator owns all retry accounting; the services
// it calls are stateless.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/crag-go/internal/generate"
	"github.com/54b3r/crag-go/internal/logging"
	"github.com/54b3r/crag-go/internal/rag"
	"github.com/54b3r/crag-go/internal/router"
)

// Classifier decides the retrieval route for a question.
type Classifier interface {
	Classify(ctx context.Context, question string) (router.Route, error)
}

// DocumentJudge reduces a retrieved set to the relevant subset.
type DocumentJudge interface {
	Grade(ctx context.Context, question string, docs []rag.Document) ([]rag.Document, error)
}

// GroundednessJudge verifies an answer against its evidence.
type GroundednessJudge interface {
	IsGrounded(ctx context.Context, answer string, docs []rag.Document) (bool, error)
}

// SufficiencyJudge verifies an answer against the user's original question.
type SufficiencyJudge interface {
	Resolves(ctx context.Context, originalQuestion, answer string) (bool, error)
}

// Generator produces a candidate answer from graded evidence.
type Generator interface {
	Generate(ctx context.Context, question string, docs []rag.Document) (string, error)
}

// Rewriter reformulates a question for the next retrieval attempt.
type Rewriter interface {
	Rewrite(ctx context.Context, question string) (string, error)
}

// Deps are the services the orchestrator drives. All fields are required;
// VectorRetriever and WebRetriever back the two routes.
type Deps struct {
	Classifier      Classifier
	VectorRetriever rag.Retriever
	WebRetriever    rag.Retriever
	Documents       DocumentJudge
	Groundedness    GroundednessJudge
	Sufficiency     SufficiencyJudge
	Generator       Generator
	Rewriter        Rewriter
}

// Config holds the orchestrator settings. Everything the loop depends on is
// passed explicitly here — the pipeline performs no ambient lookups.
type Config struct {
	// MaxRetries is the shared budget of loop-back transitions per run,
	// covering both rewrite-and-retry and regeneration. Defaults to 3 if zero.
	MaxRetries int

	// FallbackRoute is used when classification fails. Defaults to
	// router.RouteWebSearch if empty.
	FallbackRoute router.Route

	// FallbackAnswer is returned from Exhausted runs. Defaults to the
	// standard insufficient-information answer if empty; it is never empty
	// in a Result.
	FallbackAnswer string

	// TopK is the retrieval depth passed to the active retriever. Zero means
	// the retriever's default.
	TopK int

	// Registry receives the pipeline metrics. Defaults to
	// prometheus.DefaultRegisterer if nil.
	Registry prometheus.Registerer
}

// Step is one recorded transition of a run, kept for the Result trace.
type Step struct {
	// State is the state entered by this transition.
	State State
	// Event is the event that caused it.
	Event Event
}

// Result is the outcome of one pipeline run. Answer is always non-empty:
// exhausted runs carry the configured fallback answer.
type Result struct {
	// RunID uniquely identifies this run across logs, traces, and storage.
	RunID string
	// Answer is the final answer text.
	Answer string
	// Route is the retrieval route the run used.
	Route router.Route
	// Retries is the retry budget consumed.
	Retries int
	// State is the terminal state reached: Done or Exhausted.
	State State
	// Duration is the wall-clock run time.
	Duration time.Duration
	// Steps is the ordered transition trace of the run.
	Steps []Step
}

// Pipeline is the answer loop orchestrator. It is safe for concurrent use;
// each Answer call runs an independent state machine.
type Pipeline struct {
	deps    Deps
	cfg     Config
	metrics *pipelineMetrics
}

// New constructs a Pipeline, validating that every dependency is present and
// resolving config defaults.
func New(deps Deps, cfg Config) (*Pipeline, error) {
	switch {
	case deps.Classifier == nil:
		return nil, fmt.Errorf("pipeline: classifier must not be nil")
	case deps.VectorRetriever == nil:
		return nil, fmt.Errorf("pipeline: vector retriever must not be nil")
	case deps.WebRetriever == nil:
		return nil, fmt.Errorf("pipeline: web retriever must not be nil")
	case deps.Documents == nil:
		return nil, fmt.Errorf("pipeline: document judge must not be nil")
	case deps.Groundedness == nil:
		return nil, fmt.Errorf("pipeline: groundedness judge must not be nil")
	case deps.Sufficiency == nil:
		return nil, fmt.Errorf("pipeline: sufficiency judge must not be nil")
	case deps.Generator == nil:
		return nil, fmt.Errorf("pipeline: generator must not be nil")
	case deps.Rewriter == nil:
		return nil, fmt.Errorf("pipeline: rewriter must not be nil")
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.FallbackRoute == "" {
		cfg.FallbackRoute = router.RouteWebSearch
	} else if _, err := router.ParseRoute(string(cfg.FallbackRoute)); err != nil {
		return nil, fmt.Errorf("pipeline: invalid fallback route: %w", err)
	}
	if cfg.FallbackAnswer == "" {
		cfg.FallbackAnswer = generate.DefaultInsufficientAnswer
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Pipeline{
		deps:    deps,
		cfg:     cfg,
		metrics: newPipelineMetrics(reg),
	}, nil
}

// run carries the mutable state of one Answer call.
type run struct {
	// originalQuestion is what the user asked; sufficiency is always judged
	// against it, never against a rewrite.
	originalQuestion string
	// question is the current (possibly rewritten) retrieval query.
	question string
	// route is fixed after the first classification; rewrites never re-route.
	route router.Route
	// documents is the graded evidence set. Replaced wholesale per retrieval.
	documents []rag.Document
	// generation is the most recent candidate answer.
	generation string
	// retryCount is the shared budget consumed so far.
	retryCount int

	state State
	steps []Step
}

// advance applies event to the run's state machine and records the step.
func (r *run) advance(event Event) error {
	to, err := next(r.state, event)
	if err != nil {
		return err
	}
	r.state = to
	r.steps = append(r.steps, Step{State: to, Event: event})
	return nil
}

// Answer executes one full pipeline run for question. It returns an error
// only for persistent infrastructure failures (a retrieval backend that
// stays down through its local retries) and for context cancellation; every
// judging, generation, and classification fault is absorbed by the loop
// policy and resolves to a Done or Exhausted result.
func (p *Pipeline) Answer(ctx context.Context, question string) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.FromContext(ctx)

	r := &run{
		originalQuestion: question,
		question:         question,
		state:            stateStart,
	}

	log.Info("pipeline: run started", slog.String("question", question))

	res, err := p.execute(ctx, r)
	elapsed := time.Since(start)

	if err != nil {
		p.metrics.observeRun("error", string(r.route), r.retryCount, elapsed.Seconds())
		log.Error("pipeline: run failed", slog.Any("error", err), slog.Duration("duration", elapsed))
		return nil, err
	}

	res.RunID = runID
	res.Duration = elapsed
	p.metrics.observeRun(string(res.State), string(res.Route), res.Retries, elapsed.Seconds())
	log.Info("pipeline: run finished",
		slog.String("state", string(res.State)),
		slog.String("route", string(res.Route)),
		slog.Int("retries", res.Retries),
		slog.Duration("duration", elapsed),
	)
	return res, nil
}

// execute drives the state machine to a terminal state.
func (p *Pipeline) execute(ctx context.Context, r *run) (*Result, error) {
	log := logging.FromContext(ctx)

	if err := p.classify(ctx, r); err != nil {
		return nil, err
	}
	retriever := p.deps.VectorRetriever
	if r.route == router.RouteWebSearch {
		retriever = p.deps.WebRetriever
	}

	for {
		// Retrieval. The evidence set is replaced atomically: a failed call
		// leaves no partial update because the error aborts the run.
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pipeline: run cancelled: %w", err)
		}
		retrieved, err := retriever.Retrieve(ctx, r.question, p.cfg.TopK)
		if err != nil {
			return nil, fmt.Errorf("pipeline: retrieval failed on route %q: %w", r.route, err)
		}
		if err := r.advance(EventDocsRetrieved); err != nil {
			return nil, err
		}

		graded, err := p.deps.Documents.Grade(ctx, r.question, retrieved)
		if err != nil {
			return nil, fmt.Errorf("pipeline: grading aborted: %w", err)
		}
		log.Debug("pipeline: evidence graded",
			slog.Int("retrieved", len(retrieved)),
			slog.Int("kept", len(graded)),
		)

		if len(graded) == 0 {
			if err := r.advance(EventEvidenceEmpty); err != nil {
				return nil, err
			}
			if done, err := p.loopBack(ctx, r, true); done || err != nil {
				return p.exhausted(r), err
			}
			continue
		}
		if err := r.advance(EventDocsGraded); err != nil {
			return nil, err
		}
		r.documents = graded

		res, retry, err := p.generateAndVerify(ctx, r)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
		if !retry {
			return p.exhausted(r), nil
		}
		// Loop back to retrieval with the (possibly rewritten) question.
	}
}

// classify fixes the run's route. Any classification failure falls back to
// the configured route and the run proceeds — routing faults never abort a
// run. Cancellation is the one exception.
func (p *Pipeline) classify(ctx context.Context, r *run) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pipeline: run cancelled: %w", err)
	}

	route, err := p.deps.Classifier.Classify(ctx, r.originalQuestion)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("pipeline: run cancelled: %w", ctx.Err())
		}
		var classErr *router.ClassificationError
		if errors.As(err, &classErr) {
			logging.FromContext(ctx).Warn("pipeline: malformed classification, using fallback route",
				slog.String("route", string(p.cfg.FallbackRoute)),
				slog.String("raw", classErr.Raw),
			)
		} else {
			logging.FromContext(ctx).Warn("pipeline: classification failed, using fallback route",
				slog.String("route", string(p.cfg.FallbackRoute)),
				slog.Any("error", err),
			)
		}
		route = p.cfg.FallbackRoute
	}

	r.route = route
	return r.advance(EventRouteChosen)
}

// generateAndVerify runs the generation and verification inner loop over the
// current evidence set. It returns a non-nil Result on Done, retry=true when
// the caller should loop back to retrieval, and (nil, false, nil) when the
// budget ran out.
func (p *Pipeline) generateAndVerify(ctx context.Context, r *run) (*Result, bool, error) {
	log := logging.FromContext(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return nil, false, fmt.Errorf("pipeline: run cancelled: %w", err)
		}

		answer, err := p.deps.Generator.Generate(ctx, r.question, r.documents)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, fmt.Errorf("pipeline: run cancelled: %w", ctx.Err())
			}
			// A failed generation spends a retry and regenerates against the
			// same evidence, like an ungrounded answer does.
			log.Warn("pipeline: generation failed", slog.Any("error", err))
			if done, lbErr := p.loopBack(ctx, r, false); done || lbErr != nil {
				return nil, false, lbErr
			}
			continue
		}
		r.generation = answer
		if err := r.advance(EventAnswerGenerated); err != nil {
			return nil, false, err
		}

		grounded, err := p.verdict(ctx, "grounding", func() (bool, error) {
			return p.deps.Groundedness.IsGrounded(ctx, r.generation, r.documents)
		})
		if err != nil {
			return nil, false, err
		}
		if !grounded {
			if err := r.advance(EventUngrounded); err != nil {
				return nil, false, err
			}
			// The evidence is assumed adequate; the fault is attributed to
			// generation, so regenerate rather than re-retrieve.
			if done, lbErr := p.loopBack(ctx, r, false); done || lbErr != nil {
				return nil, false, lbErr
			}
			continue
		}
		if err := r.advance(EventGrounded); err != nil {
			return nil, false, err
		}

		resolved, err := p.verdict(ctx, "sufficiency", func() (bool, error) {
			return p.deps.Sufficiency.Resolves(ctx, r.originalQuestion, r.generation)
		})
		if err != nil {
			return nil, false, err
		}
		if resolved {
			if err := r.advance(EventResolved); err != nil {
				return nil, false, err
			}
			return &Result{
				Answer:  r.generation,
				Route:   r.route,
				Retries: r.retryCount,
				State:   r.state,
				Steps:   r.steps,
			}, false, nil
		}
		if err := r.advance(EventUnresolved); err != nil {
			return nil, false, err
		}
		// The evidence is assumed inadequate for the original question:
		// rewrite and re-retrieve.
		if done, lbErr := p.loopBack(ctx, r, true); done || lbErr != nil {
			return nil, false, lbErr
		}
		return nil, true, nil
	}
}

// verdict wraps one judge call with the fail-closed policy: any judging
// failure (malformed response or exhausted transport retries) counts as a
// "no" verdict rather than aborting the run. Cancellation aborts.
func (p *Pipeline) verdict(ctx context.Context, kind string, judge func() (bool, error)) (bool, error) {
	ok, err := judge()
	if err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("pipeline: run cancelled: %w", ctx.Err())
		}
		logging.FromContext(ctx).Warn("pipeline: judge failed, treating verdict as no",
			slog.String("check", kind),
			slog.Any("error", err),
		)
		return false, nil
	}
	return ok, nil
}

// loopBack spends one unit of the shared retry budget. When the budget is
// already spent it fires the exhaustion transition and reports done=true.
// With rewrite set, the question is reformulated for the next retrieval; a
// failed rewrite logs and keeps the current question — the retry cap is what
// prevents infinite identical retries.
func (p *Pipeline) loopBack(ctx context.Context, r *run, rewrite bool) (done bool, err error) {
	log := logging.FromContext(ctx)

	if r.retryCount >= p.cfg.MaxRetries {
		lastState := r.state
		if err := r.advance(EventBudgetExhausted); err != nil {
			return false, err
		}
		log.Warn("pipeline: giving up",
			slog.Any("cause", &ExhaustedRetriesError{Retries: r.retryCount, LastState: lastState}),
		)
		return true, nil
	}
	r.retryCount++
	if err := r.advance(EventRetrySpent); err != nil {
		return false, err
	}

	if rewrite {
		rewritten, rwErr := p.deps.Rewriter.Rewrite(ctx, r.question)
		if rwErr != nil {
			if ctx.Err() != nil {
				return false, fmt.Errorf("pipeline: run cancelled: %w", ctx.Err())
			}
			log.Warn("pipeline: rewrite failed, retrying with current question", slog.Any("error", rwErr))
		} else {
			log.Debug("pipeline: question rewritten", slog.String("question", rewritten))
			r.question = rewritten
		}
	}
	return false, nil
}

// exhausted builds the terminal result for a run that ran out of budget.
// The configured fallback answer is returned, never an empty answer and
// never an error.
func (p *Pipeline) exhausted(r *run) *Result {
	if r.state != StateExhausted {
		// Only reached when execute aborts with an error; the caller
		// discards the result in that case.
		return nil
	}
	return &Result{
		Answer:  p.cfg.FallbackAnswer,
		Route:   r.route,
		Retries: r.retryCount,
		State:   r.state,
		Steps:   r.steps,
	}
}
