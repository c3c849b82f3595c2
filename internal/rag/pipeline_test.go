package rag

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.retrieval/internal/chunker"
)

type mockPipelineEmbedder struct {
	batches [][]string
	err     error
}

func (m *mockPipelineEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, m.err
}

func (m *mockPipelineEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batches = append(m.batches, texts)
	if m.err != nil {
		return nil, m.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

func (m *mockPipelineEmbedder) Dimension() int    { return 2 }
func (m *mockPipelineEmbedder) ModelName() string { return "mock" }

type mockChunkStore struct {
	upserts   [][]IndexedChunk
	deleted   []string
	upsertErr error
}

func (m *mockChunkStore) UpsertChunks(_ context.Context, chunks []IndexedChunk) error {
	snapshot := make([]IndexedChunk, len(chunks))
	copy(snapshot, chunks)
	m.upserts = append(m.upserts, snapshot)
	return m.upsertErr
}

func (m *mockChunkStore) DeleteDocument(_ context.Context, documentID string) error {
	m.deleted = append(m.deleted, documentID)
	return nil
}

func staticChunks(contents ...string) ChunkFunc {
	return func(_ context.Context, _ string) ([]chunker.Chunk, error) {
		chunks := make([]chunker.Chunk, len(contents))
		for i, c := range contents {
			chunks[i] = chunker.Chunk{Content: c, Index: i}
		}
		return chunks, nil
	}
}

func TestNewPipeline(t *testing.T) {
	embedder := &mockPipelineEmbedder{}
	store := &mockChunkStore{}

	_, err := NewPipeline(nil, "window", embedder, store, 0, nil, nil)
	require.Error(t, err)
	_, err = NewPipeline(staticChunks("a"), "window", nil, store, 0, nil, nil)
	require.Error(t, err)
	_, err = NewPipeline(staticChunks("a"), "window", embedder, nil, 0, nil, nil)
	require.Error(t, err)

	p, err := NewPipeline(staticChunks("a"), "window", embedder, store, 0, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestPipeline_IndexDocument(t *testing.T) {
	t.Run("stores pending rows before embedding", func(t *testing.T) {
		embedder := &mockPipelineEmbedder{}
		store := &mockChunkStore{}
		p, err := NewPipeline(staticChunks("alpha", "beta", "gamma"), "window", embedder, store, 2, nil, nil)
		require.NoError(t, err)

		count, err := p.IndexDocument(context.Background(), "doc-1", "ignored")
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		// First upsert is the pending pass, then one per embedding batch.
		require.Len(t, store.upserts, 3)
		for _, ic := range store.upserts[0] {
			assert.Nil(t, ic.Embedding, "pending rows must not carry vectors")
			assert.Equal(t, "doc-1", ic.DocumentID)
			assert.NotEmpty(t, ic.ID)
		}
		assert.Len(t, store.upserts[1], 2)
		assert.Len(t, store.upserts[2], 1)
		for _, batch := range store.upserts[1:] {
			for _, ic := range batch {
				assert.NotNil(t, ic.Embedding)
			}
		}
	})

	t.Run("chunk ids are distinct", func(t *testing.T) {
		embedder := &mockPipelineEmbedder{}
		store := &mockChunkStore{}
		p, err := NewPipeline(staticChunks("alpha", "beta"), "window", embedder, store, 0, nil, nil)
		require.NoError(t, err)

		_, err = p.IndexDocument(context.Background(), "doc-1", "ignored")
		require.NoError(t, err)

		ids := make(map[string]bool)
		for _, ic := range store.upserts[0] {
			assert.False(t, ids[ic.ID])
			ids[ic.ID] = true
		}
	})

	t.Run("empty text indexes nothing", func(t *testing.T) {
		embedder := &mockPipelineEmbedder{}
		store := &mockChunkStore{}
		p, err := NewPipeline(staticChunks(), "window", embedder, store, 0, nil, nil)
		require.NoError(t, err)

		count, err := p.IndexDocument(context.Background(), "doc-1", "")
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.Empty(t, store.upserts)
		assert.Empty(t, embedder.batches)
	})

	t.Run("embedding failure leaves pending rows stored", func(t *testing.T) {
		embedder := &mockPipelineEmbedder{err: fmt.Errorf("provider down")}
		store := &mockChunkStore{}
		p, err := NewPipeline(staticChunks("alpha"), "window", embedder, store, 0, nil, nil)
		require.NoError(t, err)

		count, err := p.IndexDocument(context.Background(), "doc-1", "ignored")
		require.Error(t, err)
		assert.Equal(t, 1, count)
		require.Len(t, store.upserts, 1, "the pending pass must have happened")
		assert.Nil(t, store.upserts[0][0].Embedding)
	})

	t.Run("requires a document id", func(t *testing.T) {
		p, err := NewPipeline(staticChunks("alpha"), "window", &mockPipelineEmbedder{}, &mockChunkStore{}, 0, nil, nil)
		require.NoError(t, err)
		_, err = p.IndexDocument(context.Background(), "", "text")
		require.Error(t, err)
	})
}

func TestPipeline_DeleteDocument(t *testing.T) {
	store := &mockChunkStore{}
	p, err := NewPipeline(staticChunks("alpha"), "window", &mockPipelineEmbedder{}, store, 0, nil, nil)
	require.NoError(t, err)

	require.NoError(t, p.DeleteDocument(context.Background(), "doc-1"))
	assert.Equal(t, []string{"doc-1"}, store.deleted)
}

func TestMultiStore(t *testing.T) {
	t.Run("requires at least one store", func(t *testing.T) {
		_, err := NewMultiStore()
		require.Error(t, err)
	})

	t.Run("fans writes out to all stores", func(t *testing.T) {
		first := &mockChunkStore{}
		second := &mockChunkStore{}
		ms, err := NewMultiStore(first, second)
		require.NoError(t, err)

		chunks := []IndexedChunk{{ID: "c1", DocumentID: "doc-1"}}
		require.NoError(t, ms.UpsertChunks(context.Background(), chunks))
		assert.Len(t, first.upserts, 1)
		assert.Len(t, second.upserts, 1)

		require.NoError(t, ms.DeleteDocument(context.Background(), "doc-1"))
		assert.Equal(t, []string{"doc-1"}, first.deleted)
		assert.Equal(t, []string{"doc-1"}, second.deleted)
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		first := &mockChunkStore{upsertErr: fmt.Errorf("disk full")}
		second := &mockChunkStore{}
		ms, err := NewMultiStore(first, second)
		require.NoError(t, err)

		require.Error(t, ms.UpsertChunks(context.Background(), []IndexedChunk{{ID: "c1"}}))
		assert.Empty(t, second.upserts)
	})
}
