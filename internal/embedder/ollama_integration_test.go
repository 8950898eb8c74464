//go:build integration

package embedder

import (
	"context"
	"os"
	"slices"
	"testing"
	"time"
)

// TestOllamaEmbedder_Integration hits a real local Ollama instance end to
// end. It needs the embedding model pulled and the server running:
//
//	ollama pull nomic-embed-text
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
//
// Set OLLAMA_HOST when Ollama is not on localhost:11434.
func TestOllamaEmbedder_Integration(t *testing.T) {
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = defaultOllamaModel
	}
	emb := newOllamaFromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	texts := []string{
		"Chain-of-thought prompting elicits step-by-step reasoning from language models.",
		"Agent memory systems combine short-term scratchpads with long-term vector recall.",
	}

	embeddings, err := emb.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed() failed: %v\n\nEnsure Ollama is running and %q is pulled:\n  ollama pull %s", err, model, model)
	}
	if len(embeddings) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(embeddings))
	}
	for i, vec := range embeddings {
		if len(vec) == 0 {
			t.Errorf("embedding[%d] is empty", i)
		}
	}

	// Two different sentences must not map to the same vector.
	if slices.Equal(embeddings[0], embeddings[1]) {
		t.Error("distinct inputs produced identical embeddings — model is not working")
	}

	// Surface the dimension so the operator can cross-check their Qdrant
	// collection size.
	t.Logf("model=%s dim=%d (set EMBEDDING_DIMENSIONS=%d for the Qdrant collection)", model, len(embeddings[0]), len(embeddings[0]))
}
