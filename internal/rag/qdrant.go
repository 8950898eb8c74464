package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Reserved payload keys. Everything else in a point's payload round-trips
// through Document.Metadata.
const (
	payloadContent = "content"
	payloadSource  = "source"
)

// QdrantConfig holds connection parameters for the knowledge-base collection.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection names the collection holding the knowledge base.
	Collection string

	// VectorSize is the embedding dimensionality. Must match the embedder's
	// output or searches silently degrade.
	VectorSize uint64

	// APIKey authenticates against managed clusters. Empty for local.
	APIKey string

	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool
}

// QdrantStore is the VectorStore behind the vectorstore retrieval route.
// One store serves both ingestion (Upsert) and question answering (Search).
type QdrantStore struct {
	client *qdrant.Client
	cfg    *QdrantConfig
}

// NewQdrantStore connects to Qdrant and guarantees the configured collection
// exists, creating it with cosine distance when missing.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// Client exposes the underlying gRPC client for readiness probes.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// pointFromDocument flattens a document and its embedding into a Qdrant point.
func pointFromDocument(doc Document, embedding []float32) *qdrant.PointStruct {
	payload := map[string]any{
		payloadContent: doc.Content,
		payloadSource:  doc.Source,
	}
	for k, v := range doc.Metadata {
		payload[k] = v
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(doc.ID),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: qdrant.NewValueMap(payload),
	}
}

// documentFromPoint rebuilds a Document from a scored search result.
func documentFromPoint(r *qdrant.ScoredPoint) Document {
	doc := Document{
		ID:       r.Id.GetUuid(),
		Score:    r.Score,
		Metadata: make(map[string]string),
	}
	for k, v := range r.Payload {
		switch k {
		case payloadContent:
			doc.Content = v.GetStringValue()
		case payloadSource:
			doc.Source = v.GetStringValue()
		default:
			doc.Metadata[k] = v.GetStringValue()
		}
	}
	return doc
}

// Upsert stores or updates a batch of documents with their pre-computed
// embeddings. embeddings[i] is the vector for docs[i].
func (s *QdrantStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("qdrant: %d documents but %d embeddings", len(docs), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = pointFromDocument(doc, embeddings[i])
	}

	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Search runs a cosine similarity query and returns the top-k documents with
// payloads attached.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	limit := uint64(topK) //nolint:gosec // topK is a small positive result count
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	docs := make([]Document, len(results))
	for i, r := range results {
		docs[i] = documentFromPoint(r)
	}
	return docs, nil
}

// Delete removes documents from the collection by ID.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	if _, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	}); err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}
	return nil
}

// Close tears down the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
