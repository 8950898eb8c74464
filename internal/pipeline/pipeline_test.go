package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/crag-go/internal/generate"
	"github.com/54b3r/crag-go/internal/rag"
	"github.com/54b3r/crag-go/internal/router"
)

// Function adapters so each test scripts exactly the behavior it needs.

type classifierFunc func(ctx context.Context, question string) (router.Route, error)

func (f classifierFunc) Classify(ctx context.Context, question string) (router.Route, error) {
	return f(ctx, question)
}

type retrieverFunc func(ctx context.Context, question string, topK int) ([]rag.Document, error)

func (f retrieverFunc) Retrieve(ctx context.Context, question string, topK int) ([]rag.Document, error) {
	return f(ctx, question, topK)
}

type docJudgeFunc func(ctx context.Context, question string, docs []rag.Document) ([]rag.Document, error)

func (f docJudgeFunc) Grade(ctx context.Context, question string, docs []rag.Document) ([]rag.Document, error) {
	return f(ctx, question, docs)
}

type groundedFunc func(ctx context.Context, answer string, docs []rag.Document) (bool, error)

func (f groundedFunc) IsGrounded(ctx context.Context, answer string, docs []rag.Document) (bool, error) {
	return f(ctx, answer, docs)
}

type resolvesFunc func(ctx context.Context, originalQuestion, answer string) (bool, error)

func (f resolvesFunc) Resolves(ctx context.Context, originalQuestion, answer string) (bool, error) {
	return f(ctx, originalQuestion, answer)
}

type generatorFunc func(ctx context.Context, question string, docs []rag.Document) (string, error)

func (f generatorFunc) Generate(ctx context.Context, question string, docs []rag.Document) (string, error) {
	return f(ctx, question, docs)
}

type rewriterFunc func(ctx context.Context, question string) (string, error)

func (f rewriterFunc) Rewrite(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

var evidence = []rag.Document{
	{ID: "d1", Content: "Messi captained Argentina to the 2022 World Cup title.", Source: "web", Score: 0.9},
}

// happyDeps returns deps for a zero-retry success run; tests override the
// fields they exercise.
func happyDeps() Deps {
	return Deps{
		Classifier: classifierFunc(func(_ context.Context, _ string) (router.Route, error) {
			return router.RouteWebSearch, nil
		}),
		VectorRetriever: retrieverFunc(func(_ context.Context, _ string, _ int) ([]rag.Document, error) {
			return evidence, nil
		}),
		WebRetriever: retrieverFunc(func(_ context.Context, _ string, _ int) ([]rag.Document, error) {
			return evidence, nil
		}),
		Documents: docJudgeFunc(func(_ context.Context, _ string, docs []rag.Document) ([]rag.Document, error) {
			return docs, nil
		}),
		Groundedness: groundedFunc(func(_ context.Context, _ string, _ []rag.Document) (bool, error) {
			return true, nil
		}),
		Sufficiency: resolvesFunc(func(_ context.Context, _, _ string) (bool, error) {
			return true, nil
		}),
		Generator: generatorFunc(func(_ context.Context, _ string, _ []rag.Document) (string, error) {
			return "Messi won the 2022 World Cup with Argentina.", nil
		}),
		Rewriter: rewriterFunc(func(_ context.Context, question string) (string, error) {
			return "rewritten: " + question, nil
		}),
	}
}

func newTestPipeline(t *testing.T, deps Deps, cfg Config) *Pipeline {
	t.Helper()
	cfg.Registry = prometheus.NewRegistry()
	p, err := New(deps, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestAnswer_SuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, happyDeps(), Config{})

	res, err := p.Answer(context.Background(), "Summarize Messi's 2022 World Cup achievements")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.State != StateDone {
		t.Errorf("state = %s, want done", res.State)
	}
	if res.Retries != 0 {
		t.Errorf("retries = %d, want 0", res.Retries)
	}
	if res.Route != router.RouteWebSearch {
		t.Errorf("route = %s, want websearch", res.Route)
	}
	if res.Answer != "Messi won the 2022 World Cup with Argentina." {
		t.Errorf("answer = %q", res.Answer)
	}
	if res.RunID == "" {
		t.Error("run ID is empty")
	}
	if len(res.Steps) == 0 || res.Steps[len(res.Steps)-1].State != StateDone {
		t.Errorf("trace does not end in done: %v", res.Steps)
	}
}

func TestAnswer_VectorStoreRoute(t *testing.T) {
	t.Parallel()

	deps := happyDeps()
	vectorCalled := false
	deps.Classifier = classifierFunc(func(_ context.Context, _ string) (router.Route, error) {
		return router.RouteVectorStore, nil
	})
	deps.VectorRetriever = retrieverFunc(func(_ context.Context, _ string, _ int) ([]rag.Document, error) {
		vectorCalled = true
		return evidence, nil
	})
	deps.WebRetriever = retrieverFunc(func(_ context.Context, _ string, _ int) ([]rag.Document, error) {
		t.Error("web retriever must not be called on the vectorstore route")
		return nil, nil
	})
	p := newTestPipeline(t, deps, Config{})

	res, err := p.Answer(context.Background(), "What are the types of agent memory?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !vectorCalled {
		t.Error("vector retriever was not called")
	}
	if res.Route != router.RouteVectorStore {
		t.Errorf("route = %s, want vectorstore", res.Route)
	}
}

func TestAnswer_OneRewriteCycle(t *testing.T) {
	t.Parallel()

	deps := happyDeps()
	var questions []string
	deps.WebRetriever = retrieverFunc(func(_ context.Context, question string, _ int) ([]rag.Document, error) {
		questions = append(questions, question)
		if len(questions) == 1 {
			return nil, nil // first retrieval finds nothing
		}
		return evidence, nil
	})
	rewrites := 0
	deps.Rewriter = rewriterFunc(func(_ context.Context, question string) (string, error) {
		rewrites++
		return "sharpened: " + question, nil
	})
	p := newTestPipeline(t, deps, Config{})

	res, err := p.Answer(context.Background(), "Can prompt engineering prevent hallucination?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.State != StateDone {
		t.Errorf("state = %s, want done", res.State)
	}
	if res.Retries != 1 {
		t.Errorf("retries = %d, want 1", res.Retries)
	}
	if rewrites != 1 {
		t.Errorf("rewrites = %d, want 1", rewrites)
	}
	if len(questions) != 2 || !strings.HasPrefix(questions[1], "sharpened: ") {
		t.Errorf("second retrieval used question %q, want the rewritten one", questions[len(questions)-1])
	}
}

func TestAnswer_AlwaysUngroundedExhausts(t *testing.T) {
	t.Parallel()

	deps := happyDeps()
	generations := 0
	deps.Generator = generatorFunc(func(_ context.Context, _ string, _ []rag.Document) (string, error) {
		generations++
		return "confabulated answer", nil
	})
	deps.Groundedness = groundedFunc(func(_ context.Context, _ string, _ []rag.Document) (bool, error) {
		return false, nil
	})
	retrievals := 0
	deps.WebRetriever = retrieverFunc(func(_ context.Context, _ string, _ int) ([]rag.Document, error) {
		retrievals++
		return evidence, nil
	})
	p := newTestPipeline(t, deps, Config{MaxRetries: 3})

	res, err := p.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.State != StateExhausted {
		t.Errorf("state = %s, want exhausted", res.State)
	}
	if res.Retries != 3 {
		t.Errorf("retries = %d, want 3", res.Retries)
	}
	// Regeneration stays on the same evidence: one retrieval, budget+1 generations.
	if retrievals != 1 {
		t.Errorf("retrievals = %d, want 1", retrievals)
	}
	if generations != 4 {
		t.Errorf("generations = %d, want 4", generations)
	}
	if res.Answer != generate.DefaultInsufficientAnswer {
		t.Errorf("answer = %q, want the fallback answer", res.Answer)
	}
}

func TestAnswer_EmptyRetrieverExhaustsAfterMaxRewrites(t *testing.T) {
	t.Parallel()

	deps := happyDeps()
	retrievals := 0
	deps.WebRetriever = retrieverFunc(func(_ context.Context, _ string, _ int) ([]rag.Document, error) {
		retrievals++
		return nil, nil
	})
	rewrites := 0
	deps.Rewriter = rewriterFunc(func(_ context.Context, question string) (string, error) {
		rewrites++
		return question + "!", nil
	})
	p := newTestPipeline(t, deps, Config{MaxRetries: 2, FallbackAnswer: "I could not find anything."})

	res, err := p.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.State != StateExhausted {
		t.Errorf("state = %s, want exhausted", res.State)
	}
	if res.Retries != 2 {
		t.Errorf("retries = %d, want 2", res.Retries)
	}
	if rewrites != 2 {
		t.Errorf("rewrites = %d, want 2", rewrites)
	}
	if retrievals != 3 {
		t.Errorf("retrievals = %d, want 3", retrievals)
	}
	if res.Answer != "I could not find anything." {
		t.Errorf("answer = %q, want the configured fallback", res.Answer)
	}
}

func TestAnswer_MalformedClassificationUsesFallbackRoute(t *testing.T) {
	t.Parallel()

	deps := happyDeps()
	deps.Classifier = classifierFunc(func(_ context.Context, _ string) (router.Route, error) {
		return "", &router.ClassificationError{Raw: "the route is probably websearch", Err: errors.New("bad json")}
	})
	vectorCalled := false
	deps.VectorRetriever = retrieverFunc(func(_ context.Context, _ string, _ int) ([]rag.Document, error) {
		vectorCalled = true
		return evidence, nil
	})
	p := newTestPipeline(t, deps, Config{FallbackRoute: router.RouteVectorStore})

	res, err := p.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !vectorCalled {
		t.Error("fallback route retriever was not called")
	}
	if res.Route != router.RouteVectorStore {
		t.Errorf("route = %s, want the fallback route", res.Route)
	}
	if res.State != StateDone {
		t.Errorf("state = %s, want done — classification failure must not abort", res.State)
	}
}

func TestAnswer_SufficiencyJudgedAgainstOriginalQuestion(t *testing.T) {
	t.Parallel()

	deps := happyDeps()
	attempt := 0
	deps.WebRetriever = retrieverFunc(func(_ context.Context, _ string, _ int) ([]rag.Document, error) {
		attempt++
		if attempt == 1 {
			return nil, nil // force one rewrite so question != originalQuestion
		}
		return evidence, nil
	})
	var judgedQuestion string
	deps.Sufficiency = resolvesFunc(func(_ context.Context, originalQuestion, _ string) (bool, error) {
		judgedQuestion = originalQuestion
		return true, nil
	})
	p := newTestPipeline(t, deps, Config{})

	if _, err := p.Answer(context.Background(), "original question"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if judgedQuestion != "original question" {
		t.Errorf("sufficiency judged against %q, want the original question", judgedQuestion)
	}
}

func TestAnswer_UnresolvedRewritesAndRetries(t *testing.T) {
	t.Parallel()

	deps := happyDeps()
	verdicts := []bool{false, true}
	deps.Sufficiency = resolvesFunc(func(_ context.Context, _, _ string) (bool, error) {
		v := verdicts[0]
		if len(verdicts) > 1 {
			verdicts = verdicts[1:]
		}
		return v, nil
	})
	retrievals := 0
	deps.WebRetriever = retrieverFunc(func(_ context.Context, _ string, _ int) ([]rag.Document, error) {
		retrievals++
		return evidence, nil
	})
	p := newTestPipeline(t, deps, Config{})

	res, err := p.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.State != StateDone {
		t.Errorf("state = %s, want done", res.State)
	}
	if res.Retries != 1 {
		t.Errorf("retries = %d, want 1", res.Retries)
	}
	// An unresolved answer re-enters at retrieval, not regeneration.
	if retrievals != 2 {
		t.Errorf("retrievals = %d, want 2", retrievals)
	}
}

func TestAnswer_FailedRewriteKeepsCurrentQuestion(t *testing.T) {
	t.Parallel()

	deps := happyDeps()
	var questions []string
	deps.WebRetriever = retrieverFunc(func(_ context.Context, question string, _ int) ([]rag.Document, error) {
		questions = append(questions, question)
		if len(questions) == 1 {
			return nil, nil
		}
		return evidence, nil
	})
	deps.Rewriter = rewriterFunc(func(_ context.Context, _ string) (string, error) {
		return "", &generate.GenerationError{Op: "rewrite", Err: errors.New("model down")}
	})
	p := newTestPipeline(t, deps, Config{})

	res, err := p.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer: %v — a failed rewrite must not abort the run", err)
	}
	if res.State != StateDone {
		t.Errorf("state = %s, want done", res.State)
	}
	if len(questions) != 2 || questions[1] != "q" {
		t.Errorf("second retrieval used %q, want the unchanged question", questions[len(questions)-1])
	}
}

func TestAnswer_JudgeFailureIsFailClosed(t *testing.T) {
	t.Parallel()

	deps := happyDeps()
	groundingCalls := 0
	deps.Groundedness = groundedFunc(func(_ context.Context, _ string, _ []rag.Document) (bool, error) {
		groundingCalls++
		if groundingCalls == 1 {
			return false, errors.New("judge transport down")
		}
		return true, nil
	})
	p := newTestPipeline(t, deps, Config{})

	res, err := p.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer: %v — a judge failure must degrade, not abort", err)
	}
	if res.State != StateDone {
		t.Errorf("state = %s, want done", res.State)
	}
	// The failed verdict counted as "no" and spent one retry.
	if res.Retries != 1 {
		t.Errorf("retries = %d, want 1", res.Retries)
	}
}

func TestAnswer_GenerationFailureSpendsRetry(t *testing.T) {
	t.Parallel()

	deps := happyDeps()
	generations := 0
	deps.Generator = generatorFunc(func(_ context.Context, _ string, _ []rag.Document) (string, error) {
		generations++
		if generations == 1 {
			return "", &generate.GenerationError{Op: "generate", Err: errors.New("model down")}
		}
		return "recovered answer", nil
	})
	p := newTestPipeline(t, deps, Config{})

	res, err := p.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.State != StateDone {
		t.Errorf("state = %s, want done", res.State)
	}
	if res.Retries != 1 {
		t.Errorf("retries = %d, want 1", res.Retries)
	}
	if res.Answer != "recovered answer" {
		t.Errorf("answer = %q", res.Answer)
	}
}

func TestAnswer_PersistentRetrievalFailureIsHardError(t *testing.T) {
	t.Parallel()

	deps := happyDeps()
	deps.WebRetriever = retrieverFunc(func(_ context.Context, _ string, _ int) ([]rag.Document, error) {
		return nil, &rag.RetrievalError{Backend: "websearch", Err: errors.New("unreachable")}
	})
	p := newTestPipeline(t, deps, Config{})

	_, err := p.Answer(context.Background(), "q")
	if err == nil {
		t.Fatal("expected hard error for persistent retrieval failure")
	}
	var retErr *rag.RetrievalError
	if !errors.As(err, &retErr) {
		t.Errorf("error = %T, want *rag.RetrievalError in the chain", err)
	}
}

func TestAnswer_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(t, happyDeps(), Config{})
	_, err := p.Answer(ctx, "q")
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled in the chain", err)
	}
}

func TestAnswer_TraceRecordsEveryTransition(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, happyDeps(), Config{})
	res, err := p.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	want := []State{
		StateRouted, StateRetrieved, StateGraded,
		StateGenerated, StateGrounded, StateDone,
	}
	if len(res.Steps) != len(want) {
		t.Fatalf("trace has %d steps, want %d: %v", len(res.Steps), len(want), res.Steps)
	}
	for i, s := range want {
		if res.Steps[i].State != s {
			t.Errorf("step %d = %s, want %s", i, res.Steps[i].State, s)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	deps := happyDeps()
	deps.Generator = nil
	if _, err := New(deps, Config{Registry: prometheus.NewRegistry()}); err == nil {
		t.Error("want error for missing generator")
	}

	if _, err := New(happyDeps(), Config{
		FallbackRoute: "carrier-pigeon",
		Registry:      prometheus.NewRegistry(),
	}); err == nil {
		t.Error("want error for invalid fallback route")
	}
}
