package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"dev.helix.retrieval/internal/observability/metrics"
)

// RerankerConfig configures the cross-encoder reranker.
type RerankerConfig struct {
	// Enabled turns the external scoring call on. The capability is
	// resolved once at construction; a reranker built without an
	// endpoint stays degraded for its whole lifetime.
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Endpoint string        `json:"endpoint" yaml:"endpoint"`
	Model    string        `json:"model" yaml:"model"`
	APIKey   string        `json:"api_key" yaml:"api_key"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultRerankerConfig returns the default reranker configuration.
func DefaultRerankerConfig() *RerankerConfig {
	return &RerankerConfig{
		Enabled: false,
		Model:   "BAAI/bge-reranker-v2-m3",
		Timeout: 30 * time.Second,
	}
}

// CrossEncoderReranker scores query/chunk pairs against an external
// cross-encoder service. It degrades gracefully: on any failure the
// first topN results in their original order are returned, logged but
// never raised.
type CrossEncoderReranker struct {
	config     *RerankerConfig
	enabled    bool
	httpClient *http.Client
	logger     *logrus.Logger
	metrics    *metrics.Collector
}

// NewCrossEncoderReranker creates a reranker. A nil config uses
// defaults; the metrics collector may be nil.
func NewCrossEncoderReranker(config *RerankerConfig, logger *logrus.Logger, collector *metrics.Collector) *CrossEncoderReranker {
	if config == nil {
		config = DefaultRerankerConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CrossEncoderReranker{
		config:     config,
		enabled:    config.Enabled && config.Endpoint != "",
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
		metrics:    collector,
	}
}

// Enabled reports whether the external scoring call will be attempted.
func (r *CrossEncoderReranker) Enabled() bool {
	return r.enabled
}

// Rerank reorders results by cross-encoder relevance and truncates to
// topN. Result sets already within topN are returned unchanged with
// their own similarity standing in as the rerank score.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, results []SearchResult, topN int) []SearchResult {
	if len(results) == 0 || topN <= 0 {
		return nil
	}

	if len(results) <= topN {
		for i := range results {
			results[i].RerankScore = results[i].Similarity
		}
		return results
	}

	if !r.enabled {
		return r.degrade(results, topN, "disabled", nil)
	}

	scores, err := r.scorePairs(ctx, query, results)
	if err != nil {
		return r.degrade(results, topN, "provider_error", err)
	}

	reranked := make([]SearchResult, len(results))
	copy(reranked, results)
	for i := range reranked {
		reranked[i].RerankScore = scores[i]
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].RerankScore > reranked[j].RerankScore
	})
	return reranked[:topN]
}

// degrade falls back to the first topN results in original order.
func (r *CrossEncoderReranker) degrade(results []SearchResult, topN int, reason string, err error) []SearchResult {
	entry := r.logger.WithField("reason", reason)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("Reranking degraded, keeping fused order")
	if r.metrics != nil {
		r.metrics.RerankDegradations.WithLabelValues(reason).Inc()
	}
	return results[:topN]
}

// scorePairs calls the cross-encoder service with query/content pairs
// and returns one relevance score per result, in input order.
func (r *CrossEncoderReranker) scorePairs(ctx context.Context, query string, results []SearchResult) ([]float64, error) {
	pairs := make([][2]string, len(results))
	for i, result := range results {
		pairs[i] = [2]string{query, result.Content}
	}

	body, err := json.Marshal(map[string]interface{}{
		"model": r.config.Model,
		"pairs": pairs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("reranker returned status %d: %s", resp.StatusCode, string(payload))
	}

	var decoded struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(decoded.Scores) != len(results) {
		return nil, fmt.Errorf("reranker returned %d scores for %d results", len(decoded.Scores), len(results))
	}

	return decoded.Scores, nil
}
