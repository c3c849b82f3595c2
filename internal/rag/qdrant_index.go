package rag

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"dev.helix.retrieval/internal/vectordb/qdrant"
)

// QdrantIndex adapts a Qdrant collection to the VectorIndex interface.
// It also implements ChunkStore for deployments that keep chunks in
// Qdrant instead of Postgres; chunks without embeddings are skipped on
// upsert since Qdrant requires a vector per point.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	logger     *logrus.Logger
}

// NewQdrantIndex creates a Qdrant-backed vector index.
func NewQdrantIndex(client *qdrant.Client, collection string, logger *logrus.Logger) (*QdrantIndex, error) {
	if client == nil {
		return nil, fmt.Errorf("qdrant client is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &QdrantIndex{
		client:     client,
		collection: collection,
		logger:     logger,
	}, nil
}

// QueryTopK returns the k most similar chunks by cosine similarity.
func (q *QdrantIndex) QueryTopK(ctx context.Context, vector []float32, k int, minSimilarity float64, documentIDs []string) ([]RankedChunk, error) {
	points, err := q.client.Search(ctx, q.collection, vector, &qdrant.SearchParams{
		Limit:          k,
		ScoreThreshold: minSimilarity,
		DocumentIDs:    documentIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	chunks := make([]RankedChunk, 0, len(points))
	for _, p := range points {
		chunks = append(chunks, RankedChunk{
			ID:         p.ID,
			DocumentID: payloadString(p.Payload, "document_id"),
			Content:    payloadString(p.Payload, "content"),
			Score:      p.Score,
			Metadata:   p.Payload,
		})
	}
	return chunks, nil
}

// UpsertChunks stores embedded chunks as Qdrant points. Chunks whose
// embedding has not been computed yet are skipped.
func (q *QdrantIndex) UpsertChunks(ctx context.Context, chunks []IndexedChunk) error {
	points := make([]qdrant.Point, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		payload := map[string]interface{}{
			"document_id": c.DocumentID,
			"content":     c.Chunk.Content,
			"chunk_index": c.Chunk.Index,
			"page":        c.Chunk.Page,
		}
		for k, v := range c.Chunk.Metadata {
			payload[k] = v
		}
		points = append(points, qdrant.Point{
			ID:      c.ID,
			Vector:  c.Embedding,
			Payload: payload,
		})
	}
	if len(points) == 0 {
		return nil
	}
	if err := q.client.UpsertPoints(ctx, q.collection, points); err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

// DeleteDocument removes all chunks belonging to a document.
func (q *QdrantIndex) DeleteDocument(ctx context.Context, documentID string) error {
	if err := q.client.DeleteByDocument(ctx, q.collection, documentID); err != nil {
		return fmt.Errorf("qdrant delete failed: %w", err)
	}
	return nil
}

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}
