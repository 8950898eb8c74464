// Package generate produces candidate answers from graded evidence and
// rewrites questions when retrieval comes back thin. Both operations share
// the GenerationError taxonomy: a failed rewrite is a generation-class
// failure, not a special case.
package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/crag-go/internal/budget"
	"github.com/54b3r/crag-go/internal/llmcall"
	"github.com/54b3r/crag-go/internal/rag"
)

// DefaultInsufficientAnswer is the answer produced when no graded evidence
// is available. It is a legitimate answer, never an error.
const DefaultInsufficientAnswer = "I don't have enough information to answer that question."

// GenerationError is the typed failure for generation-class calls: answer
// generation and query rewriting. The pipeline spends a retry on it rather
// than aborting — generation faults are recoverable within the loop budget.
type GenerationError struct {
	// Op names the failed operation: "generate" or "rewrite".
	Op string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *GenerationError) Unwrap() error { return e.Err }

// generatorPrompt instructs the model to answer strictly from the supplied
// evidence. The grounding contract here is what the hallucination grader
// verifies afterwards: claims outside the evidence are a generation fault.
const generatorPrompt = `You are an assistant for question-answering tasks. Use ONLY the provided
pieces of retrieved context to answer the question. If the context does not
contain the answer, say that you don't know — do not invent facts. Keep the
answer concise: three sentences maximum.`

// Config holds Generator settings.
type Config struct {
	// MaxEvidenceTokens is the estimated token budget for the evidence
	// rendered into one generation prompt. Defaults to
	// budget.DefaultMaxEvidenceTokens if zero.
	MaxEvidenceTokens int

	// InsufficientAnswer is returned when the evidence set is empty.
	// Defaults to DefaultInsufficientAnswer if empty.
	InsufficientAnswer string
}

// Generator produces a candidate answer from the question and its graded
// evidence. It is stateless and safe for concurrent use; determinism is not
// guaranteed — two calls with identical input may differ.
type Generator struct {
	// caller is the shared LLM gateway.
	caller *llmcall.Caller

	// maxEvidenceTokens bounds the evidence rendered per prompt.
	maxEvidenceTokens int

	// insufficientAnswer is the canned no-evidence answer.
	insufficientAnswer string
}

// NewGenerator constructs a Generator using the shared LLM caller.
func NewGenerator(caller *llmcall.Caller, cfg *Config) (*Generator, error) {
	if caller == nil {
		return nil, fmt.Errorf("generate: caller must not be nil")
	}
	maxTokens := 0
	answer := ""
	if cfg != nil {
		maxTokens = cfg.MaxEvidenceTokens
		answer = cfg.InsufficientAnswer
	}
	if maxTokens <= 0 {
		maxTokens = budget.DefaultMaxEvidenceTokens
	}
	if answer == "" {
		answer = DefaultInsufficientAnswer
	}
	return &Generator{
		caller:             caller,
		maxEvidenceTokens:  maxTokens,
		insufficientAnswer: answer,
	}, nil
}

// Generate produces a candidate answer for the question from docs. With an
// empty evidence set it returns the explicit insufficient-information answer
// without calling the model — fabricating content from nothing is exactly
// what the grounding contract forbids. Evidence exceeding the token budget
// is trimmed lowest-score-first before prompting.
func (g *Generator) Generate(ctx context.Context, question string, docs []rag.Document) (string, error) {
	if len(docs) == 0 {
		return g.insufficientAnswer, nil
	}

	trimmed := budget.TrimEvidence(docs, g.maxEvidenceTokens)

	msgs := []*schema.Message{
		schema.SystemMessage(generatorPrompt),
		schema.UserMessage(fmt.Sprintf("Context:\n\n%s\n\nQuestion: %s", formatContext(trimmed), question)),
	}

	answer, err := g.caller.GenerateText(ctx, msgs)
	if err != nil {
		return "", &GenerationError{Op: "generate", Err: err}
	}
	if answer == "" {
		return "", &GenerationError{Op: "generate", Err: fmt.Errorf("model returned empty answer")}
	}

	return answer, nil
}

// formatContext renders the evidence documents for the generation prompt,
// one block per document with its source tag.
func formatContext(docs []rag.Document) string {
	var sb strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, doc.Source, doc.Content)
	}
	return strings.TrimSpace(sb.String())
}
