package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/54b3r/crag-go/internal/rag"
)

// fakeEmbedder returns a fixed-size zero vector per input text.
type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, 4)
	}
	return out, nil
}

// captureStore records every upserted batch.
type captureStore struct {
	docs       []rag.Document
	embeddings [][]float32
}

func (c *captureStore) Upsert(_ context.Context, docs []rag.Document, embeddings [][]float32) error {
	c.docs = append(c.docs, docs...)
	c.embeddings = append(c.embeddings, embeddings...)
	return nil
}

func (c *captureStore) Search(_ context.Context, _ []float32, _ int) ([]rag.Document, error) {
	return nil, nil
}

func (c *captureStore) Delete(_ context.Context, _ []string) error { return nil }
func (c *captureStore) Close() error                               { return nil }

// TestIngest_EndToEnd verifies the full fetch → chunk → embed → upsert flow
// against a local test server.
func TestIngest_EndToEnd(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("knowledge base article content. ", 100) // ~3200 chars
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	emb := &fakeEmbedder{}
	store := &captureStore{}
	p, err := NewPipeline(emb, store, &Config{ChunkSize: 1000, ChunkOverlap: 100})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	var msgs []string
	err = p.Ingest(context.Background(), []Source{
		{URL: srv.URL, Topic: "agents", DocType: "post"},
	}, func(msg string) { msgs = append(msgs, msg) })
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if len(store.docs) == 0 {
		t.Fatal("expected upserted documents")
	}
	if len(store.docs) != len(store.embeddings) {
		t.Errorf("docs/embeddings mismatch: %d vs %d", len(store.docs), len(store.embeddings))
	}
	if emb.calls != 1 {
		t.Errorf("expected 1 embed batch, got %d", emb.calls)
	}

	first := store.docs[0]
	if first.Metadata["topic"] != "agents" || first.Metadata["doc_type"] != "post" {
		t.Errorf("metadata: %v", first.Metadata)
	}
	if first.Metadata["chunk_index"] != "0" {
		t.Errorf("chunk_index: got %q", first.Metadata["chunk_index"])
	}
	if first.Source != srv.URL {
		t.Errorf("source: got %q", first.Source)
	}
	if first.ID == "" {
		t.Error("expected non-empty deterministic chunk ID")
	}

	if len(msgs) == 0 {
		t.Error("expected progress messages")
	}
}

// TestIngest_FetchError verifies that a non-200 response aborts ingestion
// with a descriptive error.
func TestIngest_FetchError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := NewPipeline(&fakeEmbedder{}, &captureStore{}, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	err = p.Ingest(context.Background(), []Source{{URL: srv.URL}}, nil)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "fetch failed") {
		t.Errorf("error: %v", err)
	}
}

// TestChunk_Overlap verifies consecutive chunks share the configured overlap.
func TestChunk_Overlap(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(&fakeEmbedder{}, &captureStore{}, &Config{ChunkSize: 10, ChunkOverlap: 3})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	chunks := p.chunk("abcdefghijklmnopqrstuvwxyz")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	// Each chunk starts size-overlap after the previous one.
	if !strings.HasPrefix(chunks[1], chunks[0][7:]) {
		t.Errorf("chunks do not overlap: %q then %q", chunks[0], chunks[1])
	}
}

// TestChunkID_Deterministic verifies IDs are stable across calls and distinct
// per index.
func TestChunkID_Deterministic(t *testing.T) {
	t.Parallel()

	a := chunkID("https://example.com/doc", 0)
	b := chunkID("https://example.com/doc", 0)
	c := chunkID("https://example.com/doc", 1)

	if a != b {
		t.Errorf("same input gave different IDs: %q vs %q", a, b)
	}
	if a == c {
		t.Error("different indexes gave the same ID")
	}
}
