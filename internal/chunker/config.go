package chunker

import "fmt"

// WindowConfig configures the fixed-window chunker. Sizes are in runes.
type WindowConfig struct {
	ChunkSize    int `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"`
}

// DefaultWindowConfig returns the default fixed-window configuration.
func DefaultWindowConfig() *WindowConfig {
	return &WindowConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Validate checks the window configuration.
func (c *WindowConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("chunk_overlap must not be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap %d must be smaller than chunk_size %d", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// SimilarityConfig configures the semantic chunker. It is resolved once
// at the start of a chunking call and treated as immutable afterwards.
type SimilarityConfig struct {
	MaxChunkSize        int     `json:"max_chunk_size" yaml:"max_chunk_size"`
	MinChunkSize        int     `json:"min_chunk_size" yaml:"min_chunk_size"`
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`
	SentenceWindow      int     `json:"sentence_window" yaml:"sentence_window"`
}

// DefaultSimilarityConfig returns the default semantic-chunking configuration.
func DefaultSimilarityConfig() *SimilarityConfig {
	return &SimilarityConfig{
		MaxChunkSize:        1500,
		MinChunkSize:        200,
		SimilarityThreshold: 0.75,
		SentenceWindow:      3,
	}
}

// Validate checks the similarity configuration.
func (c *SimilarityConfig) Validate() error {
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("max_chunk_size must be positive, got %d", c.MaxChunkSize)
	}
	if c.MinChunkSize < 0 {
		return fmt.Errorf("min_chunk_size must not be negative, got %d", c.MinChunkSize)
	}
	if c.MinChunkSize > c.MaxChunkSize {
		return fmt.Errorf("min_chunk_size %d must not exceed max_chunk_size %d", c.MinChunkSize, c.MaxChunkSize)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %f", c.SimilarityThreshold)
	}
	if c.SentenceWindow < 1 {
		return fmt.Errorf("sentence_window must be at least 1, got %d", c.SentenceWindow)
	}
	return nil
}
