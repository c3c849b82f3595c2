// Package rag implements the hybrid retrieval engine: chunk candidates
// from a vector index and a lexical index are fused into one ordered
// result list, optionally refined by a cross-encoder reranker. The
// package also holds the indexing pipeline that feeds the stores.
package rag

import (
	"context"

	"dev.helix.retrieval/internal/chunker"
)

// RankedChunk is one chunk record returned by a single index. Score is
// ranker-native and not comparable across indexes: the vector index
// reports cosine similarity, the lexical index keyword relevance.
type RankedChunk struct {
	ID         string                 `json:"id"`
	DocumentID string                 `json:"document_id"`
	Content    string                 `json:"content"`
	Score      float64                `json:"score"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// SearchResult is one entry of the fused, query-scoped result list.
// FusedScore orders the list; Similarity preserves the vector index's
// native similarity for display and is 0 when the chunk was only found
// by the lexical stage. RerankScore is set by the reranker.
type SearchResult struct {
	ID          string                 `json:"id"`
	DocumentID  string                 `json:"document_id"`
	Content     string                 `json:"content"`
	FusedScore  float64                `json:"fused_score"`
	Similarity  float64                `json:"similarity"`
	RerankScore float64                `json:"rerank_score,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// SearchOptions configures one hybrid search call.
type SearchOptions struct {
	// Limit caps the fused result list. Defaults to 10.
	Limit int `json:"limit"`
	// MinSimilarity filters the vector stage: only chunks with
	// similarity (1 - cosine distance) at or above it are considered.
	MinSimilarity float64 `json:"min_similarity"`
	// DocumentIDs restricts both stages to a subset of documents.
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// DefaultSearchOptions returns the default search options.
func DefaultSearchOptions() *SearchOptions {
	return &SearchOptions{
		Limit:         10,
		MinSimilarity: 0.0,
	}
}

// VectorIndex is the boundary contract of the vector store: top-k
// chunks by ascending cosine distance, reported as similarity.
type VectorIndex interface {
	QueryTopK(ctx context.Context, vector []float32, k int, minSimilarity float64, documentIDs []string) ([]RankedChunk, error)
}

// LexicalIndex is the boundary contract of the keyword store: top-k
// chunks matching any of the keywords (OR semantics), ranked by the
// index's native relevance score.
type LexicalIndex interface {
	QueryKeywords(ctx context.Context, keywords []string, k int, documentIDs []string) ([]RankedChunk, error)
}

// Embedder generates vector embeddings for texts.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// Reranker reorders the top of a fused result list. Reranking is an
// enhancement stage and never fails the pipeline.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []SearchResult, topN int) []SearchResult
}

// IndexedChunk is a chunk ready for persistence: chunker output plus
// identity and, once embedding completes, its vector. A chunk without a
// vector is pending and is skipped by the vector stage until embedded.
type IndexedChunk struct {
	ID         string
	DocumentID string
	Chunk      chunker.Chunk
	Embedding  []float32
}

// ChunkStore is the persistence boundary of the indexing pipeline. The
// engine never persists anything itself; it only produces values for
// the store. Deleting a document deletes its chunks.
type ChunkStore interface {
	UpsertChunks(ctx context.Context, chunks []IndexedChunk) error
	DeleteDocument(ctx context.Context, documentID string) error
}
