package budget

import (
	"strings"
	"testing"

	"github.com/54b3r/crag-go/internal/rag"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateDocuments(t *testing.T) {
	t.Parallel()
	docs := []rag.Document{
		// 8 overhead + 2 content (8 chars) + 1 source = 11
		{Content: "abcdefgh", Source: "kb"},
		{Content: "abcdefgh", Source: "kb"},
	}
	got := EstimateDocuments(docs)
	if got != 22 {
		t.Errorf("EstimateDocuments = %d, want 22", got)
	}
}

func Test_TrimEvidence_NoTrimNeeded(t *testing.T) {
	t.Parallel()
	docs := []rag.Document{
		{Content: "short", Score: 0.9},
		{Content: "also short", Score: 0.8},
	}
	got := TrimEvidence(docs, DefaultMaxEvidenceTokens)
	if len(got) != 2 {
		t.Errorf("want 2 documents, got %d", len(got))
	}
}

func Test_TrimEvidence_DropsLowestScoreFirst(t *testing.T) {
	t.Parallel()
	// Each document: 8 overhead + 100 content tokens (400 chars) = 108.
	// Three documents = 324. Budget of 250 fits two (216) but not three.
	content := strings.Repeat("x", 400)
	docs := []rag.Document{
		{ID: "high", Content: content, Score: 0.9},
		{ID: "low", Content: content, Score: 0.2},
		{ID: "mid", Content: content, Score: 0.5},
	}
	got := TrimEvidence(docs, 250)
	if len(got) != 2 {
		t.Fatalf("want 2 documents after trim, got %d", len(got))
	}
	// The lowest-scored document is gone; the rest keep original order.
	if got[0].ID != "high" || got[1].ID != "mid" {
		t.Errorf("kept = [%s, %s], want [high, mid]", got[0].ID, got[1].ID)
	}
}

func Test_TrimEvidence_PreservesOrderOfSurvivors(t *testing.T) {
	t.Parallel()
	content := strings.Repeat("x", 400)
	docs := []rag.Document{
		{ID: "a", Content: content, Score: 0.3},
		{ID: "b", Content: content, Score: 0.9},
		{ID: "c", Content: content, Score: 0.4},
	}
	// Budget fits exactly two documents.
	got := TrimEvidence(docs, 250)
	if len(got) != 2 {
		t.Fatalf("want 2 documents, got %d", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "c" {
		t.Errorf("kept = [%s, %s], want [b, c]", got[0].ID, got[1].ID)
	}
}

func Test_TrimEvidence_InputNotMutated(t *testing.T) {
	t.Parallel()
	content := strings.Repeat("x", 400)
	docs := []rag.Document{
		{ID: "a", Content: content, Score: 0.1},
		{ID: "b", Content: content, Score: 0.9},
	}
	_ = TrimEvidence(docs, 120)
	if len(docs) != 2 || docs[0].ID != "a" {
		t.Error("input slice was mutated")
	}
}

func Test_TrimEvidence_Empty(t *testing.T) {
	t.Parallel()
	if got := TrimEvidence(nil, 100); len(got) != 0 {
		t.Errorf("want empty, got %d", len(got))
	}
}
