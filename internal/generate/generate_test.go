package generate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/crag-go/internal/llmcall"
	"github.com/54b3r/crag-go/internal/rag"
)

// scriptedModel returns a fixed reply and records the prompts it saw.
// An empty reply with fail=true simulates a transport failure.
type scriptedModel struct {
	reply   string
	fail    bool
	calls   int
	lastMsg string
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.calls++
	if len(input) > 0 {
		m.lastMsg = input[len(input)-1].Content
	}
	if m.fail {
		return nil, errors.New("simulated transport failure")
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func newTestCaller(t *testing.T, m llmcall.ChatModel) *llmcall.Caller {
	t.Helper()
	caller, err := llmcall.New(m, &llmcall.Config{
		Timeout:        time.Second,
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
		RPS:            1000,
		Burst:          1000,
	})
	if err != nil {
		t.Fatalf("llmcall.New: %v", err)
	}
	return caller
}

func TestGenerator_AnswersFromEvidence(t *testing.T) {
	t.Parallel()

	m := &scriptedModel{reply: "Argentina won the 2022 World Cup."}
	g, err := NewGenerator(newTestCaller(t, m), nil)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	docs := []rag.Document{
		{Content: "Argentina won the 2022 FIFA World Cup.", Source: "web"},
		{Content: "The final was played in Qatar.", Source: "web"},
	}
	answer, err := g.Generate(context.Background(), "who won the 2022 world cup?", docs)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if answer != "Argentina won the 2022 World Cup." {
		t.Errorf("answer = %q", answer)
	}
	if !strings.Contains(m.lastMsg, "Argentina won the 2022 FIFA World Cup.") {
		t.Error("prompt does not contain the evidence content")
	}
	if !strings.Contains(m.lastMsg, "who won the 2022 world cup?") {
		t.Error("prompt does not contain the question")
	}
}

func TestGenerator_EmptyEvidenceSkipsModel(t *testing.T) {
	t.Parallel()

	m := &scriptedModel{reply: "should never be used"}
	g, _ := NewGenerator(newTestCaller(t, m), nil)

	answer, err := g.Generate(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if answer != DefaultInsufficientAnswer {
		t.Errorf("answer = %q, want the insufficient-information answer", answer)
	}
	if m.calls != 0 {
		t.Errorf("model called %d times, want 0", m.calls)
	}
}

func TestGenerator_CustomInsufficientAnswer(t *testing.T) {
	t.Parallel()

	g, _ := NewGenerator(newTestCaller(t, &scriptedModel{}), &Config{
		InsufficientAnswer: "No dice.",
	})

	answer, err := g.Generate(context.Background(), "anything", []rag.Document{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if answer != "No dice." {
		t.Errorf("answer = %q, want %q", answer, "No dice.")
	}
}

func TestGenerator_TransportFailureIsGenerationError(t *testing.T) {
	t.Parallel()

	g, _ := NewGenerator(newTestCaller(t, &scriptedModel{fail: true}), nil)

	_, err := g.Generate(context.Background(), "q", []rag.Document{{Content: "evidence"}})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %T, want *GenerationError", err)
	}
	if genErr.Op != "generate" {
		t.Errorf("Op = %q, want generate", genErr.Op)
	}
}

func TestGenerator_EmptyModelOutputIsGenerationError(t *testing.T) {
	t.Parallel()

	g, _ := NewGenerator(newTestCaller(t, &scriptedModel{reply: "   "}), nil)

	_, err := g.Generate(context.Background(), "q", []rag.Document{{Content: "evidence"}})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %T, want *GenerationError", err)
	}
}

func TestGenerator_TrimsOversizedEvidence(t *testing.T) {
	t.Parallel()

	m := &scriptedModel{reply: "ok"}
	g, _ := NewGenerator(newTestCaller(t, m), &Config{MaxEvidenceTokens: 150})

	big := strings.Repeat("x", 400) // ~100 tokens each plus overhead
	docs := []rag.Document{
		{ID: "keep", Content: "KEEP " + big, Score: 0.9},
		{ID: "drop", Content: "DROP " + big, Score: 0.1},
	}
	if _, err := g.Generate(context.Background(), "q", docs); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(m.lastMsg, "KEEP") {
		t.Error("high-scored document missing from prompt")
	}
	if strings.Contains(m.lastMsg, "DROP") {
		t.Error("low-scored document should have been trimmed from prompt")
	}
}

func TestRewriter_ReturnsRewrittenQuestion(t *testing.T) {
	t.Parallel()

	m := &scriptedModel{reply: "What are the main types of agent memory?"}
	r, err := NewRewriter(newTestCaller(t, m))
	if err != nil {
		t.Fatalf("NewRewriter: %v", err)
	}

	got, err := r.Rewrite(context.Background(), "agent memory??")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if got != "What are the main types of agent memory?" {
		t.Errorf("rewrite = %q", got)
	}
	if !strings.Contains(m.lastMsg, "agent memory??") {
		t.Error("prompt does not contain the original question")
	}
}

func TestRewriter_FailureIsGenerationError(t *testing.T) {
	t.Parallel()

	r, _ := NewRewriter(newTestCaller(t, &scriptedModel{fail: true}))

	_, err := r.Rewrite(context.Background(), "q")
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %T, want *GenerationError", err)
	}
	if genErr.Op != "rewrite" {
		t.Errorf("Op = %q, want rewrite", genErr.Op)
	}
}

func TestRewriter_EmptyRewriteIsGenerationError(t *testing.T) {
	t.Parallel()

	r, _ := NewRewriter(newTestCaller(t, &scriptedModel{reply: ""}))

	_, err := r.Rewrite(context.Background(), "q")
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %T, want *GenerationError", err)
	}
}

func TestNewGenerator_NilCaller(t *testing.T) {
	t.Parallel()

	if _, err := NewGenerator(nil, nil); err == nil {
		t.Error("want error for nil caller")
	}
	if _, err := NewRewriter(nil); err == nil {
		t.Error("want error for nil caller")
	}
}
