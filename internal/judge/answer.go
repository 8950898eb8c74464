package judge

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/crag-go/internal/llmcall"
)

// answerPrompt asks the judge whether the answer resolves the question.
// The judgement is always made against the user's original question, never
// a rewritten one, so sufficiency reflects user intent.
const answerPrompt = `You are a grader assessing whether an answer addresses and resolves a user
question. "yes" means the answer resolves the question; "no" means it does
not, for example because it is off-topic, incomplete, or a refusal.

` + decisionContract

// AnswerGrader judges whether a generated answer actually resolves the
// user's original question. It is stateless and safe for concurrent use.
type AnswerGrader struct {
	// caller is the shared LLM gateway.
	caller *llmcall.Caller
}

// NewAnswerGrader constructs an AnswerGrader using the shared LLM caller.
func NewAnswerGrader(caller *llmcall.Caller) (*AnswerGrader, error) {
	if caller == nil {
		return nil, fmt.Errorf("judge: caller must not be nil")
	}
	return &AnswerGrader{caller: caller}, nil
}

// Resolves reports whether answer addresses originalQuestion. A malformed
// judge response is a *GradingError; the pipeline's fail-closed policy maps
// any error to an unresolved verdict.
func (g *AnswerGrader) Resolves(ctx context.Context, originalQuestion, answer string) (bool, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(answerPrompt),
		schema.UserMessage(fmt.Sprintf("User question: %s\n\nAnswer: %s", originalQuestion, answer)),
	}

	raw, err := g.caller.GenerateText(ctx, msgs)
	if err != nil {
		return false, fmt.Errorf("judge: sufficiency call failed: %w", err)
	}

	return parseDecision(raw)
}
