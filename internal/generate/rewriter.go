package generate

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/crag-go/internal/llmcall"
)

// rewriterPrompt asks the model to reformulate the question for better
// vector-store recall. The rewrite must stay faithful to the original
// intent; the answer grader still judges against the original question.
const rewriterPrompt = `You are a question re-writer that converts an input question to a better
version optimized for vector-store retrieval. Look at the input and reason
about the underlying semantic intent. Respond with ONLY the improved
question, no preamble and no explanation.`

// Rewriter reformulates a question after a failed loop iteration so the next
// retrieval or generation attempt works from a sharper query. It is
// stateless and safe for concurrent use.
type Rewriter struct {
	// caller is the shared LLM gateway.
	caller *llmcall.Caller
}

// NewRewriter constructs a Rewriter using the shared LLM caller.
func NewRewriter(caller *llmcall.Caller) (*Rewriter, error) {
	if caller == nil {
		return nil, fmt.Errorf("generate: caller must not be nil")
	}
	return &Rewriter{caller: caller}, nil
}

// Rewrite returns an improved form of question. A failed or empty rewrite is
// a *GenerationError — it never silently returns the input, so the caller
// can decide whether to reuse the current question or abort.
func (r *Rewriter) Rewrite(ctx context.Context, question string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(rewriterPrompt),
		schema.UserMessage(fmt.Sprintf("Initial question: %s", question)),
	}

	rewritten, err := r.caller.GenerateText(ctx, msgs)
	if err != nil {
		return "", &GenerationError{Op: "rewrite", Err: err}
	}
	if rewritten == "" {
		return "", &GenerationError{Op: "rewrite", Err: fmt.Errorf("model returned empty rewrite")}
	}

	return rewritten, nil
}
