package judge

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/crag-go/internal/llmcall"
	"github.com/54b3r/crag-go/internal/rag"
)

// hallucinationPrompt asks the judge whether every factual claim in the
// answer is attributable to the evidence set.
const hallucinationPrompt = `You are a grader assessing whether an answer is grounded in a set of
retrieved facts. "yes" means every factual claim in the answer is supported
by the facts; "no" means the answer contains claims the facts do not support.

` + decisionContract

// HallucinationGrader judges whether a generated answer is grounded in the
// evidence it was generated from. It is stateless and safe for concurrent use.
type HallucinationGrader struct {
	// caller is the shared LLM gateway.
	caller *llmcall.Caller
}

// NewHallucinationGrader constructs a HallucinationGrader using the shared
// LLM caller.
func NewHallucinationGrader(caller *llmcall.Caller) (*HallucinationGrader, error) {
	if caller == nil {
		return nil, fmt.Errorf("judge: caller must not be nil")
	}
	return &HallucinationGrader{caller: caller}, nil
}

// IsGrounded reports whether every factual claim in answer is attributable
// to docs. A malformed judge response is a *GradingError; the pipeline's
// fail-closed policy maps any error to an ungrounded verdict.
func (g *HallucinationGrader) IsGrounded(ctx context.Context, answer string, docs []rag.Document) (bool, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(hallucinationPrompt),
		schema.UserMessage(fmt.Sprintf("Set of facts:\n\n%s\n\nAnswer: %s", formatEvidence(docs), answer)),
	}

	raw, err := g.caller.GenerateText(ctx, msgs)
	if err != nil {
		return false, fmt.Errorf("judge: groundedness call failed: %w", err)
	}

	return parseDecision(raw)
}

// formatEvidence renders the evidence documents for a judge prompt, one
// numbered block per document with its source tag.
func formatEvidence(docs []rag.Document) string {
	var sb strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&sb, "%d. [%s]\n%s\n\n", i+1, doc.Source, doc.Content)
	}
	return strings.TrimSpace(sb.String())
}
