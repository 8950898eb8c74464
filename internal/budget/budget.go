// Package budget provides token budget estimation and evidence trimming for
// the generation step. Because crag supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose). This deliberately
// under-estimates token counts to leave headroom for model-specific overhead.
package budget

import (
	"sort"

	"github.com/54b3r/crag-go/internal/rag"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English; using 3 would be
	// more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// docOverheadTokens is the per-document formatting overhead (numbering,
	// source tag, separators) added when evidence is rendered into a prompt.
	docOverheadTokens = 8

	// DefaultMaxEvidenceTokens is the default evidence budget for one
	// generation call. Conservative enough to fit within 8k-context models
	// alongside the system prompt and the question.
	DefaultMaxEvidenceTokens = 4000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateDocuments returns the estimated total token count for an evidence
// set, including per-document formatting overhead.
func EstimateDocuments(docs []rag.Document) int {
	total := 0
	for _, d := range docs {
		total += docOverheadTokens
		total += Estimate(d.Content)
		total += Estimate(d.Source)
	}
	return total
}

// TrimEvidence drops documents until the estimated evidence token count fits
// within maxTokens. The lowest-scored documents go first (the retrieval
// score is the only ranking signal available); the surviving documents keep
// their original relative order so generation sees the same sequence grading
// approved. The input slice is never mutated.
func TrimEvidence(docs []rag.Document, maxTokens int) []rag.Document {
	if len(docs) == 0 || EstimateDocuments(docs) <= maxTokens {
		return docs
	}

	// Index documents by ascending score to pick eviction order.
	type scored struct {
		idx   int
		score float32
	}
	order := make([]scored, len(docs))
	for i, d := range docs {
		order[i] = scored{idx: i, score: d.Score}
	}
	sort.SliceStable(order, func(a, b int) bool {
		if order[a].score != order[b].score {
			return order[a].score < order[b].score
		}
		// Equal scores: evict the later document first.
		return order[a].idx > order[b].idx
	})

	dropped := make(map[int]bool, len(docs))
	remaining := EstimateDocuments(docs)
	for _, s := range order {
		if remaining <= maxTokens {
			break
		}
		dropped[s.idx] = true
		remaining -= docOverheadTokens + Estimate(docs[s.idx].Content) + Estimate(docs[s.idx].Source)
	}

	kept := make([]rag.Document, 0, len(docs)-len(dropped))
	for i, d := range docs {
		if !dropped[i] {
			kept = append(kept, d)
		}
	}
	return kept
}
