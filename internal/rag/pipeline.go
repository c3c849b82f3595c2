package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dev.helix.retrieval/internal/chunker"
	"dev.helix.retrieval/internal/observability/metrics"
)

// ChunkFunc produces the chunks for one document's text. Both chunking
// strategies adapt to it: SemanticChunker.HybridChunk directly, the
// fixed-window chunker via a closure.
type ChunkFunc func(ctx context.Context, text string) ([]chunker.Chunk, error)

// Pipeline turns raw document text into persisted, embedded chunks:
// text is chunked, the chunk rows are stored immediately (pending,
// without vectors), then embeddings are produced in batches and the
// rows updated. A chunk stays pending until its batch completes.
type Pipeline struct {
	chunk     ChunkFunc
	strategy  string
	embedder  Embedder
	store     ChunkStore
	batchSize int
	logger    *logrus.Logger
	metrics   *metrics.Collector
}

// NewPipeline creates an indexing pipeline. The strategy names the
// chunking method in metrics and logs. batchSize <= 0 uses 20; the
// metrics collector may be nil.
func NewPipeline(chunk ChunkFunc, strategy string, embedder Embedder, store ChunkStore, batchSize int, logger *logrus.Logger, collector *metrics.Collector) (*Pipeline, error) {
	if chunk == nil {
		return nil, fmt.Errorf("chunk function is required")
	}
	if strategy == "" {
		strategy = "window"
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("chunk store is required")
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Pipeline{
		chunk:     chunk,
		strategy:  strategy,
		embedder:  embedder,
		store:     store,
		batchSize: batchSize,
		logger:    logger,
		metrics:   collector,
	}, nil
}

// IndexDocument chunks, stores and embeds one document. It returns the
// number of chunks produced. Empty text indexes nothing and is not an
// error.
func (p *Pipeline) IndexDocument(ctx context.Context, documentID, text string) (int, error) {
	if documentID == "" {
		return 0, fmt.Errorf("document id is required")
	}

	chunkStart := time.Now()
	chunks, err := p.chunk(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("chunking document %s: %w", documentID, err)
	}
	if p.metrics != nil {
		p.metrics.ChunkingDuration.WithLabelValues(p.strategy).Observe(time.Since(chunkStart).Seconds())
		p.metrics.ChunksProduced.WithLabelValues(p.strategy).Add(float64(len(chunks)))
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	indexed := make([]IndexedChunk, len(chunks))
	for i, ch := range chunks {
		indexed[i] = IndexedChunk{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			Chunk:      ch,
		}
	}

	// Store pending rows first so chunk text survives an embedding
	// outage and can be retried.
	if err := p.store.UpsertChunks(ctx, indexed); err != nil {
		return 0, fmt.Errorf("storing chunks for document %s: %w", documentID, err)
	}

	for start := 0; start < len(indexed); start += p.batchSize {
		end := start + p.batchSize
		if end > len(indexed) {
			end = len(indexed)
		}
		batch := indexed[start:end]

		texts := make([]string, len(batch))
		for i, ic := range batch {
			texts[i] = ic.Chunk.Content
		}

		started := time.Now()
		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return len(indexed), fmt.Errorf("embedding chunks %d-%d of document %s: %w", start, end-1, documentID, err)
		}
		if len(vectors) != len(batch) {
			return len(indexed), fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}
		if p.metrics != nil {
			p.metrics.EmbeddingLatency.Observe(time.Since(started).Seconds())
			p.metrics.EmbeddingBatchSize.Observe(float64(len(batch)))
		}

		for i := range batch {
			batch[i].Embedding = vectors[i]
		}
		if err := p.store.UpsertChunks(ctx, batch); err != nil {
			return len(indexed), fmt.Errorf("storing embeddings for document %s: %w", documentID, err)
		}
	}

	if p.metrics != nil {
		p.metrics.ChunksIndexed.Add(float64(len(indexed)))
	}
	p.logger.WithFields(logrus.Fields{
		"document_id": documentID,
		"chunks":      len(indexed),
	}).Info("Document indexed")

	return len(indexed), nil
}

// DeleteDocument removes a document's chunks from the store. The
// document owns its chunks: deleting it deletes all of them.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID string) error {
	if err := p.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("deleting document %s: %w", documentID, err)
	}
	p.logger.WithField("document_id", documentID).Info("Document deleted")
	return nil
}
