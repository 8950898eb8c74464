// Package rag defines the evidence retrieval contracts used by the answer
// pipeline: the Document unit, vector storage, embedding, and retrieval.
// Concrete implementations (Qdrant, web search) satisfy these interfaces so
// the pipeline layer never depends on a specific backend.
package rag

import (
	"context"
)

// Document is one unit of retrieved evidence. Documents are immutable once
// created: each retrieval produces a fresh slice, and retries replace the
// previous set wholesale rather than mutating it.
type Document struct {
	// ID is the unique identifier for this document chunk.
	ID string

	// Content is the raw text content of the chunk.
	Content string

	// Source is the opaque provenance tag: an origin URL, file path, or
	// collection name. Carried through to the final answer trace.
	Source string

	// Metadata holds arbitrary key-value pairs (topic, section, etc.).
	Metadata map[string]string

	// Score is the similarity or relevance score assigned during retrieval
	// (0.0–1.0). Zero value means the score was not computed.
	Score float32
}

// VectorStore is the interface for persisting and searching document embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of documents with their pre-computed
	// embeddings. The embeddings slice must be parallel to docs —
	// embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search performs a semantic similarity search and returns the top-k
	// most relevant documents for the given query embedding.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever fetches evidence documents for a question. An empty result is a
// legitimate outcome (no evidence found), not an error; errors indicate the
// backend itself failed. Implementations must be safe to call from multiple
// goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant documents for the question.
	// If topK is 0 the implementation's default is used.
	Retrieve(ctx context.Context, question string, topK int) ([]Document, error)
}
