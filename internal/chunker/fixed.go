package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
)

// FixedWindowChunker splits text into overlapping fixed-size windows.
// Window boundaries are snapped backward to a preferred separator so
// chunks do not cut through the middle of a word or sentence. Chunking
// is a pure function of its input.
type FixedWindowChunker struct {
	config *WindowConfig
	logger *logrus.Logger
}

// NewFixedWindowChunker creates a fixed-window chunker. A nil config
// uses defaults.
func NewFixedWindowChunker(config *WindowConfig, logger *logrus.Logger) (*FixedWindowChunker, error) {
	if config == nil {
		config = DefaultWindowConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid window config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &FixedWindowChunker{config: config, logger: logger}, nil
}

// Chunk splits text into chunks. Empty or whitespace-only input yields
// no chunks. Metadata key/value pairs are merged onto every chunk.
func (c *FixedWindowChunker) Chunk(text string, metadata map[string]interface{}) []Chunk {
	return c.chunkText(text, metadata, 0, 0)
}

// ChunkPages chunks multi-page input page by page. Chunk boundaries
// never cross a page boundary and the chunk ordinal runs across the
// whole document.
func (c *FixedWindowChunker) ChunkPages(pages []Page, metadata map[string]interface{}) []Chunk {
	var chunks []Chunk
	index := 0
	for _, page := range pages {
		pageChunks := c.chunkText(page.Text, metadata, page.Number, index)
		chunks = append(chunks, pageChunks...)
		index += len(pageChunks)
	}
	return chunks
}

func (c *FixedWindowChunker) chunkText(text string, metadata map[string]interface{}, page, baseIndex int) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	size := c.config.ChunkSize
	index := baseIndex

	var chunks []Chunk
	start := 0
	for start < len(runes) {
		// rawEnd is the unsnapped window end; it is always strictly
		// past start, which makes the loop terminate.
		rawEnd := start + size
		if rawEnd > len(runes) {
			rawEnd = len(runes)
		}
		end := rawEnd
		if rawEnd < len(runes) {
			end = snapToSeparator(runes, start, rawEnd, size/2)
		}

		if content := strings.TrimSpace(string(runes[start:end])); content != "" {
			chunks = append(chunks, Chunk{
				Content:   content,
				Index:     index,
				StartChar: start,
				EndChar:   end,
				Page:      page,
				Metadata:  mergeMetadata(metadata, nil),
			})
			index++
		}

		// Overlap is re-derived from the actual (possibly snapped) end
		// so windows never shrink below useful content.
		next := end - c.config.ChunkOverlap
		if next <= start {
			next = rawEnd
		}
		start = next
	}

	c.logger.WithFields(logrus.Fields{
		"chunks":     len(chunks),
		"chunk_size": size,
		"overlap":    c.config.ChunkOverlap,
	}).Debug("Fixed-window chunking completed")

	return chunks
}

// snapToSeparator moves the window end backward to the nearest preferred
// separator found at or after start+minOffset. Separators are checked in
// priority order: paragraph break, line break, sentence end, space. When
// none is found within the window the unsnapped end stands.
func snapToSeparator(runes []rune, start, end, minOffset int) int {
	floor := start + minOffset
	if floor >= end {
		return end
	}

	// Paragraph break.
	for i := end - 2; i >= floor; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i + 2
		}
	}
	// Line break.
	for i := end - 1; i >= floor; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	// Sentence end.
	for i := end - 1; i >= floor; i-- {
		if isSentenceTerminator(runes[i]) && (i+1 >= len(runes) || unicode.IsSpace(runes[i+1])) {
			return i + 1
		}
	}
	// Space.
	for i := end - 1; i >= floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}

	return end
}
