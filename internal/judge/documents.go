package judge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/crag-go/internal/llmcall"
	"github.com/54b3r/crag-go/internal/logging"
	"github.com/54b3r/crag-go/internal/rag"
)

// documentPrompt asks the judge whether one retrieved document is relevant
// to the question. The bar is deliberately low — keyword or semantic overlap
// counts — so the grader filters noise without discarding usable evidence.
const documentPrompt = `You are a grader assessing the relevance of a retrieved document to a user
question. If the document contains keywords or semantic meaning related to
the question, grade it as relevant. The goal is to filter out erroneous
retrievals, not to demand a complete answer.

` + decisionContract

// DocumentGrader judges each retrieved document's relevance to the question
// and reduces the set to the relevant subset. It is stateless and safe for
// concurrent use.
type DocumentGrader struct {
	// caller is the shared LLM gateway.
	caller *llmcall.Caller
}

// NewDocumentGrader constructs a DocumentGrader using the shared LLM caller.
func NewDocumentGrader(caller *llmcall.Caller) (*DocumentGrader, error) {
	if caller == nil {
		return nil, fmt.Errorf("judge: caller must not be nil")
	}
	return &DocumentGrader{caller: caller}, nil
}

// Grade returns the subset of docs judged relevant to the question,
// preserving the original relative order. Each document is judged
// independently — there is no cross-document reasoning. A document whose
// grading call fails (transport or schema) is dropped, not kept: ungraded
// evidence must never reach generation. The only error Grade returns is
// context cancellation; judge failures degrade to a smaller result set.
func (g *DocumentGrader) Grade(ctx context.Context, question string, docs []rag.Document) ([]rag.Document, error) {
	log := logging.FromContext(ctx)

	kept := make([]rag.Document, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("judge: grading cancelled: %w", err)
		}

		relevant, err := g.gradeOne(ctx, question, doc)
		if err != nil {
			// Fail-closed: an ungradable document is treated as irrelevant.
			log.Warn("judge: document grading failed, dropping document",
				slog.String("source", doc.Source),
				slog.Any("error", err),
			)
			continue
		}
		if relevant {
			kept = append(kept, doc)
		}
	}

	return kept, nil
}

// gradeOne issues a single relevance judgement for one document.
func (g *DocumentGrader) gradeOne(ctx context.Context, question string, doc rag.Document) (bool, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(documentPrompt),
		schema.UserMessage(fmt.Sprintf("Retrieved document:\n\n%s\n\nUser question: %s", doc.Content, question)),
	}

	raw, err := g.caller.GenerateText(ctx, msgs)
	if err != nil {
		return false, fmt.Errorf("judge: relevance call failed: %w", err)
	}

	return parseDecision(raw)
}
