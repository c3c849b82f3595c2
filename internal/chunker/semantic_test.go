package chunker

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder returns a fixed vector per sentence via a lookup
// function and records every batch it receives.
type mockEmbedder struct {
	embed   func(text string) []float32
	batches [][]string
	err     error
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batches = append(m.batches, texts)
	if m.err != nil {
		return nil, m.err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = m.embed(text)
	}
	return vectors, nil
}

func (m *mockEmbedder) calls() int { return len(m.batches) }

func topicEmbed(text string) []float32 {
	if strings.Contains(strings.ToLower(text), "car") {
		return []float32{0, 1}
	}
	return []float32{1, 0}
}

func TestNewSemanticChunker(t *testing.T) {
	t.Run("requires embedder", func(t *testing.T) {
		_, err := NewSemanticChunker(nil, nil, nil)
		require.Error(t, err)
	})

	t.Run("rejects invalid threshold", func(t *testing.T) {
		cfg := &SimilarityConfig{MaxChunkSize: 100, MinChunkSize: 10, SimilarityThreshold: 1.5, SentenceWindow: 3}
		_, err := NewSemanticChunker(&mockEmbedder{embed: topicEmbed}, cfg, nil)
		require.Error(t, err)
	})
}

func TestSemanticChunker_Chunk(t *testing.T) {
	t.Run("empty input yields no chunks", func(t *testing.T) {
		embedder := &mockEmbedder{embed: topicEmbed}
		c, err := NewSemanticChunker(embedder, nil, nil)
		require.NoError(t, err)

		chunks, err := c.Chunk(context.Background(), "   ")
		require.NoError(t, err)
		assert.Empty(t, chunks)
		assert.Zero(t, embedder.calls())
	})

	t.Run("short text short-circuits without embedding", func(t *testing.T) {
		embedder := &mockEmbedder{embed: topicEmbed}
		c, err := NewSemanticChunker(embedder, nil, nil)
		require.NoError(t, err)

		chunks, err := c.Chunk(context.Background(), "One sentence. Another sentence.")
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "One sentence. Another sentence.", chunks[0].Content)
		assert.Equal(t, 2, chunks[0].SentenceCount)
		assert.InDelta(t, 1.0, chunks[0].Similarity, 1e-6)
		assert.Zero(t, embedder.calls(), "short text must not hit the embedding provider")
	})

	t.Run("splits at topic boundary", func(t *testing.T) {
		embedder := &mockEmbedder{embed: topicEmbed}
		cfg := &SimilarityConfig{MaxChunkSize: 80, MinChunkSize: 10, SimilarityThreshold: 0.75, SentenceWindow: 2}
		c, err := NewSemanticChunker(embedder, cfg, nil)
		require.NoError(t, err)

		text := "Cats purr when they are happy. Cats sleep for most of the day. Cars need fuel to run."
		chunks, err := c.Chunk(context.Background(), text)
		require.NoError(t, err)
		require.Len(t, chunks, 2)

		assert.Contains(t, chunks[0].Content, "Cats purr")
		assert.Contains(t, chunks[0].Content, "Cats sleep")
		assert.Equal(t, 2, chunks[0].SentenceCount)
		assert.InDelta(t, 1.0, chunks[0].Similarity, 1e-6)

		assert.Equal(t, "Cars need fuel to run.", chunks[1].Content)
		assert.Equal(t, 1, chunks[1].SentenceCount)
	})

	t.Run("min-size guard holds over a long document", func(t *testing.T) {
		embedder := &mockEmbedder{embed: topicEmbed}
		cfg := &SimilarityConfig{MaxChunkSize: 1000, MinChunkSize: 200, SimilarityThreshold: 0.75, SentenceWindow: 3}
		c, err := NewSemanticChunker(embedder, cfg, nil)
		require.NoError(t, err)

		catSentence := "Cats " + strings.Repeat("sleep softly ", 11) + "today."
		carSentence := "Cars " + strings.Repeat("need petrol ", 11) + "today."
		text := strings.Repeat(catSentence+" ", 4) + strings.Repeat(carSentence+" ", 3)

		chunks, err := c.Chunk(context.Background(), text)
		require.NoError(t, err)
		require.Len(t, chunks, 2, "the break must land exactly on the topic change")
		assert.Equal(t, 4, chunks[0].SentenceCount)
		assert.Contains(t, chunks[0].Content, "Cats")
		assert.Equal(t, 3, chunks[1].SentenceCount)
		assert.Contains(t, chunks[1].Content, "Cars")
		assert.GreaterOrEqual(t, len([]rune(chunks[0].Content)), cfg.MinChunkSize)
	})

	t.Run("batches are sequential and bounded", func(t *testing.T) {
		embedder := &mockEmbedder{embed: func(string) []float32 { return []float32{1, 0} }}
		cfg := &SimilarityConfig{MaxChunkSize: 200, MinChunkSize: 10, SimilarityThreshold: 0.75, SentenceWindow: 3}
		c, err := NewSemanticChunker(embedder, cfg, nil)
		require.NoError(t, err)

		var b strings.Builder
		for i := 0; i < 45; i++ {
			fmt.Fprintf(&b, "This is sentence number %d in the document. ", i)
		}
		chunks, err := c.Chunk(context.Background(), b.String())
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		require.Equal(t, 3, embedder.calls())
		assert.Len(t, embedder.batches[0], 20)
		assert.Len(t, embedder.batches[1], 20)
		assert.Len(t, embedder.batches[2], 5)
	})

	t.Run("embedding failure propagates", func(t *testing.T) {
		embedder := &mockEmbedder{err: fmt.Errorf("provider down")}
		cfg := &SimilarityConfig{MaxChunkSize: 30, MinChunkSize: 5, SimilarityThreshold: 0.75, SentenceWindow: 3}
		c, err := NewSemanticChunker(embedder, cfg, nil)
		require.NoError(t, err)

		_, err = c.Chunk(context.Background(), "First sentence here. Second sentence here. Third sentence here.")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "provider down")
	})
}

func TestSemanticChunker_HybridChunk(t *testing.T) {
	t.Run("falls back to accumulation on embedding failure", func(t *testing.T) {
		embedder := &mockEmbedder{err: fmt.Errorf("provider down")}
		cfg := &SimilarityConfig{MaxChunkSize: 50, MinChunkSize: 5, SimilarityThreshold: 0.75, SentenceWindow: 3}
		c, err := NewSemanticChunker(embedder, cfg, nil)
		require.NoError(t, err)

		text := "First sentence here. Second sentence here. Third sentence here. Fourth sentence here."
		chunks, err := c.HybridChunk(context.Background(), text)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		for _, chunk := range chunks {
			assert.Zero(t, chunk.Similarity, "fallback chunks are unscored")
			assert.LessOrEqual(t, len([]rune(chunk.Content)), cfg.MaxChunkSize)
		}
	})

	t.Run("skips embedding above the sentence cap", func(t *testing.T) {
		embedder := &mockEmbedder{embed: topicEmbed}
		cfg := &SimilarityConfig{MaxChunkSize: 100, MinChunkSize: 5, SimilarityThreshold: 0.75, SentenceWindow: 3}
		c, err := NewSemanticChunker(embedder, cfg, nil)
		require.NoError(t, err)

		var b strings.Builder
		for i := 0; i < maxSemanticSentences+1; i++ {
			fmt.Fprintf(&b, "Sentence %d. ", i)
		}
		chunks, err := c.HybridChunk(context.Background(), b.String())
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		assert.Zero(t, embedder.calls())
	})
}
