package rag

import (
	"context"
	"fmt"
)

// VectorRetriever implements Retriever for the knowledge-base route by
// combining an Embedder and a VectorStore. It embeds the question at
// retrieval time and delegates similarity search to the store.
type VectorRetriever struct {
	// embedder converts question text to a dense vector.
	embedder Embedder

	// store performs the vector similarity search.
	store VectorStore

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewVectorRetriever constructs a VectorRetriever from the given Embedder and
// VectorStore. defaultTopK sets the fallback result count when Retrieve is
// called with topK=0.
func NewVectorRetriever(embedder Embedder, store VectorStore, defaultTopK int) (*VectorRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &VectorRetriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the question and returns the top-k most relevant documents.
// If topK is 0 the defaultTopK configured at construction time is used.
// An empty result means the knowledge base holds no matching evidence — the
// pipeline decides what to do with that, not this layer.
func (r *VectorRetriever) Retrieve(ctx context.Context, question string, topK int) ([]Document, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding question failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for question")
	}

	docs, err := r.store.Search(ctx, embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	return docs, nil
}
