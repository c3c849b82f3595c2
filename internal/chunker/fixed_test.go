package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFixedWindowChunker(t *testing.T) {
	t.Run("nil config uses defaults", func(t *testing.T) {
		c, err := NewFixedWindowChunker(nil, nil)
		require.NoError(t, err)
		require.NotNil(t, c)
	})

	t.Run("overlap must be smaller than size", func(t *testing.T) {
		_, err := NewFixedWindowChunker(&WindowConfig{ChunkSize: 100, ChunkOverlap: 100}, nil)
		require.Error(t, err)
	})
}

func TestFixedWindowChunker_Chunk(t *testing.T) {
	t.Run("empty input yields no chunks", func(t *testing.T) {
		c, err := NewFixedWindowChunker(nil, nil)
		require.NoError(t, err)
		assert.Empty(t, c.Chunk("", nil))
		assert.Empty(t, c.Chunk("   \n\n  ", nil))
	})

	t.Run("short text yields a single chunk", func(t *testing.T) {
		c, err := NewFixedWindowChunker(&WindowConfig{ChunkSize: 100, ChunkOverlap: 20}, nil)
		require.NoError(t, err)

		chunks := c.Chunk("A short document.", nil)
		require.Len(t, chunks, 1)
		assert.Equal(t, "A short document.", chunks[0].Content)
		assert.Equal(t, 0, chunks[0].Index)
		assert.Equal(t, 0, chunks[0].StartChar)
	})

	t.Run("long text produces overlapping windows", func(t *testing.T) {
		c, err := NewFixedWindowChunker(&WindowConfig{ChunkSize: 100, ChunkOverlap: 20}, nil)
		require.NoError(t, err)

		text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)
		chunks := c.Chunk(text, nil)
		require.Greater(t, len(chunks), 1)

		for i, chunk := range chunks {
			assert.NotEmpty(t, chunk.Content)
			assert.Equal(t, i, chunk.Index)
			if i > 0 {
				assert.Greater(t, chunk.StartChar, chunks[i-1].StartChar, "starts must strictly increase")
				assert.LessOrEqual(t, chunk.StartChar, chunks[i-1].EndChar, "windows must overlap or touch")
			}
		}
		assert.Equal(t, len([]rune(text)), chunks[len(chunks)-1].EndChar)
	})

	t.Run("windows snap to sentence boundaries", func(t *testing.T) {
		c, err := NewFixedWindowChunker(&WindowConfig{ChunkSize: 60, ChunkOverlap: 10}, nil)
		require.NoError(t, err)

		text := "First sentence here. Second sentence here. Third sentence here. Fourth sentence here."
		chunks := c.Chunk(text, nil)
		require.Greater(t, len(chunks), 1)
		assert.True(t, strings.HasSuffix(chunks[0].Content, "."), "first window should end on a sentence boundary, got %q", chunks[0].Content)
	})

	t.Run("metadata is merged onto every chunk", func(t *testing.T) {
		c, err := NewFixedWindowChunker(&WindowConfig{ChunkSize: 50, ChunkOverlap: 10}, nil)
		require.NoError(t, err)

		text := strings.Repeat("Some sentence content goes here. ", 10)
		chunks := c.Chunk(text, map[string]interface{}{"source": "test.txt"})
		require.NotEmpty(t, chunks)
		for _, chunk := range chunks {
			assert.Equal(t, "test.txt", chunk.Metadata["source"])
		}
	})

	t.Run("makes progress on separator-free text", func(t *testing.T) {
		c, err := NewFixedWindowChunker(&WindowConfig{ChunkSize: 10, ChunkOverlap: 8}, nil)
		require.NoError(t, err)

		chunks := c.Chunk(strings.Repeat("x", 100), nil)
		require.NotEmpty(t, chunks)
		for i := 1; i < len(chunks); i++ {
			assert.Greater(t, chunks[i].StartChar, chunks[i-1].StartChar)
		}
	})
}

func TestFixedWindowChunker_ChunkPages(t *testing.T) {
	c, err := NewFixedWindowChunker(&WindowConfig{ChunkSize: 50, ChunkOverlap: 10}, nil)
	require.NoError(t, err)

	pages := []Page{
		{Number: 1, Text: strings.Repeat("Page one sentence. ", 5)},
		{Number: 2, Text: strings.Repeat("Page two sentence. ", 5)},
	}
	chunks := c.ChunkPages(pages, nil)
	require.NotEmpty(t, chunks)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index, "chunk ordinal must run across pages")
	}

	var pagesSeen []int
	for _, chunk := range chunks {
		if len(pagesSeen) == 0 || pagesSeen[len(pagesSeen)-1] != chunk.Page {
			pagesSeen = append(pagesSeen, chunk.Page)
		}
	}
	assert.Equal(t, []int{1, 2}, pagesSeen)
}
