package chunker

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Embedder is the boundary contract the semantic chunker depends on.
// EmbedBatch must be order-preserving and return one vector per input.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

const (
	// embeddingBatchSize bounds how many sentence embeddings are in
	// flight at once; batches run sequentially.
	embeddingBatchSize = 20

	// maxSemanticSentences caps how large a document HybridChunk will
	// attempt to chunk semantically. Beyond it the embedding cost is
	// not worth the grouping quality.
	maxSemanticSentences = 100
)

// SemanticChunker splits text into sentences, embeds them and groups
// contiguous sentences by rolling cosine similarity.
type SemanticChunker struct {
	embedder Embedder
	config   *SimilarityConfig
	logger   *logrus.Logger
}

// NewSemanticChunker creates a semantic chunker. A nil config uses
// defaults.
func NewSemanticChunker(embedder Embedder, config *SimilarityConfig, logger *logrus.Logger) (*SemanticChunker, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if config == nil {
		config = DefaultSimilarityConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid similarity config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &SemanticChunker{
		embedder: embedder,
		config:   config,
		logger:   logger,
	}, nil
}

// Chunk splits text into semantically coherent chunks. Text no longer
// than MaxChunkSize is returned as a single chunk with similarity 1.0
// without any embedding calls. Embedding failures propagate.
func (s *SemanticChunker) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	if length := len([]rune(trimmed)); length <= s.config.MaxChunkSize {
		return []Chunk{{
			Content:       trimmed,
			Index:         0,
			StartChar:     0,
			EndChar:       length,
			SentenceCount: len(SplitSentences(trimmed)),
			Similarity:    1.0,
		}}, nil
	}

	sentences := SplitSentences(trimmed)
	vectors, err := s.embedSentences(ctx, sentences)
	if err != nil {
		return nil, fmt.Errorf("embedding sentences: %w", err)
	}

	return s.group(sentences, vectors)
}

// HybridChunk attempts semantic chunking for documents of up to
// maxSemanticSentences sentences and falls back to plain sentence
// accumulation when the semantic attempt fails or the document is too
// large. Fallback chunks carry similarity 0, marking them unscored.
func (s *SemanticChunker) HybridChunk(ctx context.Context, text string) ([]Chunk, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	sentences := SplitSentences(trimmed)
	if len(sentences) == 0 {
		return nil, nil
	}

	if len(sentences) <= maxSemanticSentences {
		chunks, err := s.Chunk(ctx, trimmed)
		if err == nil {
			return chunks, nil
		}
		s.logger.WithError(err).Warn("Semantic chunking failed, falling back to sentence accumulation")
	} else {
		s.logger.WithFields(logrus.Fields{
			"sentences": len(sentences),
			"cap":       maxSemanticSentences,
		}).Debug("Document above semantic sentence cap, using sentence accumulation")
	}

	return s.accumulateSentences(sentences), nil
}

// embedSentences embeds sentences in sequential batches; all sentences
// within one batch are issued to the provider together.
func (s *SemanticChunker) embedSentences(ctx context.Context, sentences []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(sentences))
	for start := 0; start < len(sentences); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(sentences) {
			end = len(sentences)
		}
		batch, err := s.embedder.EmbedBatch(ctx, sentences[start:end])
		if err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedder returned %d vectors for %d sentences", len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// group performs a single greedy left-to-right pass over the sentences.
// A chunk is emitted when adding the next sentence would exceed
// MaxChunkSize, or when the rolling similarity falls below the threshold
// and the chunk already meets MinChunkSize.
func (s *SemanticChunker) group(sentences []string, vectors [][]float32) ([]Chunk, error) {
	var chunks []Chunk
	var current []string
	var currentVecs [][]float32
	var stepSims []float64
	currentLen := 0
	cursor := 0

	emit := func() {
		if len(current) == 0 {
			return
		}
		similarity := 1.0
		if len(stepSims) > 0 {
			sum := 0.0
			for _, v := range stepSims {
				sum += v
			}
			similarity = sum / float64(len(stepSims))
		}
		content := strings.Join(current, " ")
		length := len([]rune(content))
		chunks = append(chunks, Chunk{
			Content:       content,
			Index:         len(chunks),
			StartChar:     cursor,
			EndChar:       cursor + length,
			SentenceCount: len(current),
			Similarity:    similarity,
		})
		cursor += length + 1
		current, currentVecs, stepSims, currentLen = nil, nil, nil, 0
	}

	for i, sentence := range sentences {
		sentenceLen := len([]rune(sentence))
		if len(current) == 0 {
			current = []string{sentence}
			currentVecs = [][]float32{vectors[i]}
			currentLen = sentenceLen
			continue
		}

		similarity, err := s.windowSimilarity(vectors[i], currentVecs)
		if err != nil {
			return nil, err
		}

		exceedsSize := currentLen+1+sentenceLen > s.config.MaxChunkSize
		breaksCoherence := similarity < s.config.SimilarityThreshold && currentLen >= s.config.MinChunkSize

		if exceedsSize || breaksCoherence {
			emit()
			current = []string{sentence}
			currentVecs = [][]float32{vectors[i]}
			currentLen = sentenceLen
			continue
		}

		current = append(current, sentence)
		currentVecs = append(currentVecs, vectors[i])
		currentLen += 1 + sentenceLen
		stepSims = append(stepSims, similarity)
	}
	emit()

	s.logger.WithFields(logrus.Fields{
		"sentences": len(sentences),
		"chunks":    len(chunks),
	}).Debug("Semantic chunking completed")

	return chunks, nil
}

// windowSimilarity averages cosine similarity between the candidate
// vector and the last SentenceWindow vectors of the current chunk.
// Comparing against the tail rather than the whole chunk bounds cost
// and tracks local coherence drift.
func (s *SemanticChunker) windowSimilarity(candidate []float32, chunkVecs [][]float32) (float64, error) {
	start := len(chunkVecs) - s.config.SentenceWindow
	if start < 0 {
		start = 0
	}
	window := chunkVecs[start:]

	sum := 0.0
	for _, vec := range window {
		sim, err := CosineSimilarity(candidate, vec)
		if err != nil {
			return 0, err
		}
		sum += sim
	}
	return sum / float64(len(window)), nil
}

// accumulateSentences packs sentences into chunks of at most
// MaxChunkSize without any embedding calls.
func (s *SemanticChunker) accumulateSentences(sentences []string) []Chunk {
	var chunks []Chunk
	var current []string
	currentLen := 0
	cursor := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		content := strings.Join(current, " ")
		length := len([]rune(content))
		chunks = append(chunks, Chunk{
			Content:       content,
			Index:         len(chunks),
			StartChar:     cursor,
			EndChar:       cursor + length,
			SentenceCount: len(current),
			Similarity:    0,
		})
		cursor += length + 1
		current, currentLen = nil, 0
	}

	for _, sentence := range sentences {
		sentenceLen := len([]rune(sentence))
		if currentLen > 0 && currentLen+1+sentenceLen > s.config.MaxChunkSize {
			flush()
		}
		current = append(current, sentence)
		if currentLen == 0 {
			currentLen = sentenceLen
		} else {
			currentLen += 1 + sentenceLen
		}
	}
	flush()

	return chunks
}
