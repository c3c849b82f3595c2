// Package chunker splits raw document text into retrievable chunks.
// Two strategies are provided: a fixed-size overlapping window chunker
// and a semantic chunker that groups contiguous sentences by embedding
// similarity.
package chunker

// Chunk is a retrievable unit of document text. Chunks are immutable
// once produced; a chunk belongs to exactly one document.
type Chunk struct {
	Content       string                 `json:"content"`
	Index         int                    `json:"index"`
	StartChar     int                    `json:"start_char"`
	EndChar       int                    `json:"end_char"`
	Page          int                    `json:"page,omitempty"`
	SentenceCount int                    `json:"sentence_count"`
	Similarity    float64                `json:"similarity"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Page is one page of pre-extracted plain text.
type Page struct {
	Number int
	Text   string
}

func mergeMetadata(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	merged := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
