// Package ingestion implements the knowledge-base ingestion pipeline.
// It fetches article pages, chunks the content, embeds each chunk, and
// upserts the results into the vector store that the vectorstore retrieval
// route searches. This pipeline is invoked by the `crag ingest` CLI command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/crag-go/internal/rag"
)

// Ingestion defaults, applied by NewPipeline when the config leaves a field
// zero.
const (
	defaultChunkSize   = 1000
	defaultOverlap     = 100
	defaultHTTPTimeout = 30 * time.Second
	defaultUserAgent   = "crag-go/1.0 (knowledge base ingestion)"
)

// Source describes a knowledge-base article to be ingested.
type Source struct {
	// URL is the HTTP(S) URL of the article to fetch.
	URL string

	// Topic is the knowledge-base topic this article covers
	// (e.g. "agents", "prompt-engineering").
	Topic string

	// DocType classifies the document kind (post, paper, readme, article).
	DocType string
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	ChunkSize int

	// ChunkOverlap is the number of characters shared between consecutive
	// chunks, so a sentence split at a boundary still appears whole in one
	// of them.
	ChunkOverlap int

	// HTTPTimeout bounds each article fetch request.
	HTTPTimeout time.Duration

	// UserAgent is sent with every fetch request.
	UserAgent string
}

// Pipeline runs the fetch → chunk → embed → upsert flow for a set of
// knowledge-base sources.
type Pipeline struct {
	embedder   rag.Embedder
	store      rag.VectorStore
	cfg        *Config
	httpClient *http.Client
}

// NewPipeline constructs a Pipeline, filling config defaults and clamping
// the overlap below the chunk size.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	return &Pipeline{
		embedder:   embedder,
		store:      store,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

// Ingest processes the sources sequentially, stopping at the first failure.
// Progress messages go to the optional callback; the "ingested ..." message
// marks a source as fully stored.
func (p *Pipeline) Ingest(ctx context.Context, sources []Source, progress func(msg string)) error {
	if progress == nil {
		progress = func(string) {}
	}
	for _, src := range sources {
		if err := p.ingestOne(ctx, src, progress); err != nil {
			return err
		}
	}
	return nil
}

// ingestOne runs the full flow for a single source.
func (p *Pipeline) ingestOne(ctx context.Context, src Source, progress func(msg string)) error {
	progress(fmt.Sprintf("fetching %s", src.URL))

	content, err := p.fetch(ctx, src.URL)
	if err != nil {
		return fmt.Errorf("ingestion: fetch failed for %s: %w", src.URL, err)
	}

	chunks := p.chunk(content)
	progress(fmt.Sprintf("chunked %s into %d chunks", src.URL, len(chunks)))

	embeddings, err := p.embedder.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("ingestion: embedding failed for %s: %w", src.URL, err)
	}

	if err := p.store.Upsert(ctx, documentsFor(src, chunks), embeddings); err != nil {
		return fmt.Errorf("ingestion: upsert failed for %s: %w", src.URL, err)
	}

	progress(fmt.Sprintf("ingested %d chunks from %s", len(chunks), src.URL))
	return nil
}

// documentsFor wraps each chunk in a Document carrying the source's topic
// and doc-type metadata.
func documentsFor(src Source, chunks []string) []rag.Document {
	docs := make([]rag.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = rag.Document{
			ID:      chunkID(src.URL, i),
			Content: chunk,
			Source:  src.URL,
			Metadata: map[string]string{
				"topic":       src.Topic,
				"doc_type":    src.DocType,
				"chunk_index": strconv.Itoa(i),
			},
		}
	}
	return docs
}

// fetch retrieves the raw text content of a URL.
func (p *Pipeline) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, text/html")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(body), nil
}

// chunk splits text into chunks of cfg.ChunkSize characters, each sharing
// cfg.ChunkOverlap characters with its predecessor.
func (p *Pipeline) chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	step := p.cfg.ChunkSize - p.cfg.ChunkOverlap
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := min(start+p.cfg.ChunkSize, len(text))
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}

// chunkID derives a stable ID from the source URL and chunk index, so
// re-ingesting a source overwrites its previous chunks instead of
// duplicating them.
func chunkID(sourceURL string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", sourceURL, index)))
	return hex.EncodeToString(h[:16])
}
