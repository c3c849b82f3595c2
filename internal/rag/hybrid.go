package rag

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dev.helix.retrieval/internal/observability/metrics"
)

// FusionMethod selects how the vector and lexical rankings are merged.
type FusionMethod string

const (
	// FusionRRF merges by reciprocal rank, ignoring native scores. The
	// two stages score on incomparable scales, so rank-based fusion is
	// the default.
	FusionRRF FusionMethod = "rrf"
	// FusionWeighted combines max-normalized native scores with an
	// alpha weight for the vector stage.
	FusionWeighted FusionMethod = "weighted"
	// FusionMax keeps each chunk's best normalized stage score.
	FusionMax FusionMethod = "max"
)

// RankerConfig configures the hybrid ranker.
type RankerConfig struct {
	// FusionMethod determines how the two rankings are combined.
	FusionMethod FusionMethod `json:"fusion_method" yaml:"fusion_method"`
	// RRFK dampens the advantage of the very top ranks in RRF.
	RRFK int `json:"rrf_k" yaml:"rrf_k"`
	// PreRetrieveMultiplier fetches N*limit candidates per stage
	// before fusion.
	PreRetrieveMultiplier int `json:"pre_retrieve_multiplier" yaml:"pre_retrieve_multiplier"`
	// Alpha weights the vector stage in weighted fusion: 0 lexical
	// only, 1 vector only.
	Alpha float64 `json:"alpha" yaml:"alpha"`
}

// DefaultRankerConfig returns the default ranker configuration.
func DefaultRankerConfig() *RankerConfig {
	return &RankerConfig{
		FusionMethod:          FusionRRF,
		RRFK:                  60,
		PreRetrieveMultiplier: 2,
		Alpha:                 0.5,
	}
}

// Validate checks the ranker configuration.
func (c *RankerConfig) Validate() error {
	if c.RRFK <= 0 {
		return fmt.Errorf("rrf_k must be positive, got %d", c.RRFK)
	}
	if c.PreRetrieveMultiplier < 1 {
		return fmt.Errorf("pre_retrieve_multiplier must be at least 1, got %d", c.PreRetrieveMultiplier)
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be in [0,1], got %f", c.Alpha)
	}
	return nil
}

// HybridRanker issues parallel queries against the vector and lexical
// indexes and fuses the two rankings into one list. Calls are stateless
// and side-effect free; any index failure propagates to the caller.
type HybridRanker struct {
	vector  VectorIndex
	lexical LexicalIndex
	config  *RankerConfig
	logger  *logrus.Logger
	metrics *metrics.Collector
}

// NewHybridRanker creates a hybrid ranker. A nil config uses defaults;
// the metrics collector may be nil.
func NewHybridRanker(vector VectorIndex, lexical LexicalIndex, config *RankerConfig, logger *logrus.Logger, collector *metrics.Collector) (*HybridRanker, error) {
	if vector == nil {
		return nil, fmt.Errorf("vector index is required")
	}
	if lexical == nil {
		return nil, fmt.Errorf("lexical index is required")
	}
	if config == nil {
		config = DefaultRankerConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ranker config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &HybridRanker{
		vector:  vector,
		lexical: lexical,
		config:  config,
		logger:  logger,
		metrics: collector,
	}, nil
}

// Search runs the vector and lexical stages concurrently and returns at
// most opts.Limit results ordered by descending fused score. When the
// query text yields no usable keywords, the vector-stage ranking is
// returned as is, truncated to the limit.
func (r *HybridRanker) Search(ctx context.Context, queryVector []float32, queryText string, opts *SearchOptions) ([]SearchResult, error) {
	if opts == nil {
		opts = DefaultSearchOptions()
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchOptions().Limit
	}
	fetchK := limit * r.config.PreRetrieveMultiplier

	keywords := ExtractKeywords(queryText)

	var vectorRanked, lexicalRanked []RankedChunk

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		started := time.Now()
		ranked, err := r.vector.QueryTopK(gctx, queryVector, fetchK, opts.MinSimilarity, opts.DocumentIDs)
		if err != nil {
			return fmt.Errorf("vector stage: %w", err)
		}
		r.observeStage("vector", started)
		vectorRanked = ranked
		return nil
	})
	if len(keywords) > 0 {
		g.Go(func() error {
			started := time.Now()
			ranked, err := r.lexical.QueryKeywords(gctx, keywords, fetchK, opts.DocumentIDs)
			if err != nil {
				return fmt.Errorf("lexical stage: %w", err)
			}
			r.observeStage("lexical", started)
			lexicalRanked = ranked
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var results []SearchResult
	if len(keywords) == 0 {
		results = r.vectorOnly(vectorRanked)
	} else {
		switch r.config.FusionMethod {
		case FusionWeighted:
			results = r.weightedFusion(vectorRanked, lexicalRanked)
		case FusionMax:
			results = r.maxFusion(vectorRanked, lexicalRanked)
		default:
			results = r.reciprocalRankFusion(vectorRanked, lexicalRanked)
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}

	r.logger.WithFields(logrus.Fields{
		"keywords":      len(keywords),
		"vector_count":  len(vectorRanked),
		"lexical_count": len(lexicalRanked),
		"fused_count":   len(results),
		"fusion_method": r.config.FusionMethod,
	}).Debug("Hybrid search completed")

	return results, nil
}

func (r *HybridRanker) observeStage(stage string, started time.Time) {
	if r.metrics != nil {
		r.metrics.SearchStageLatency.WithLabelValues(stage).Observe(time.Since(started).Seconds())
	}
}

// vectorOnly keeps the vector stage's own order; fused scores are the
// single-list reciprocal ranks so downstream sorting stays consistent.
func (r *HybridRanker) vectorOnly(ranked []RankedChunk) []SearchResult {
	k := float64(r.config.RRFK)
	results := make([]SearchResult, 0, len(ranked))
	for i, rc := range ranked {
		results = append(results, SearchResult{
			ID:         rc.ID,
			DocumentID: rc.DocumentID,
			Content:    rc.Content,
			FusedScore: 1.0 / (k + float64(i+1)),
			Similarity: rc.Score,
			Metadata:   rc.Metadata,
		})
	}
	return results
}

// reciprocalRankFusion implements RRF: fused(d) = sum over stages of
// 1/(k + rank(d)). Chunks absent from a stage contribute nothing for
// that stage. Ties break by first-seen order, vector stage first.
func (r *HybridRanker) reciprocalRankFusion(vectorRanked, lexicalRanked []RankedChunk) []SearchResult {
	k := float64(r.config.RRFK)
	index := make(map[string]int, len(vectorRanked)+len(lexicalRanked))
	results := make([]SearchResult, 0, len(vectorRanked)+len(lexicalRanked))

	for i, rc := range vectorRanked {
		results = append(results, SearchResult{
			ID:         rc.ID,
			DocumentID: rc.DocumentID,
			Content:    rc.Content,
			FusedScore: 1.0 / (k + float64(i+1)),
			Similarity: rc.Score,
			Metadata:   rc.Metadata,
		})
		index[rc.ID] = len(results) - 1
	}

	for i, rc := range lexicalRanked {
		contribution := 1.0 / (k + float64(i+1))
		if pos, seen := index[rc.ID]; seen {
			results[pos].FusedScore += contribution
			continue
		}
		results = append(results, SearchResult{
			ID:         rc.ID,
			DocumentID: rc.DocumentID,
			Content:    rc.Content,
			FusedScore: contribution,
			Metadata:   rc.Metadata,
		})
		index[rc.ID] = len(results) - 1
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FusedScore > results[j].FusedScore
	})
	return results
}

// weightedFusion combines max-normalized stage scores with alpha
// weighting the vector stage.
func (r *HybridRanker) weightedFusion(vectorRanked, lexicalRanked []RankedChunk) []SearchResult {
	alpha := r.config.Alpha
	index := make(map[string]int, len(vectorRanked)+len(lexicalRanked))
	results := make([]SearchResult, 0, len(vectorRanked)+len(lexicalRanked))

	maxVector := maxScore(vectorRanked)
	for _, rc := range vectorRanked {
		normalized := 0.0
		if maxVector > 0 {
			normalized = rc.Score / maxVector
		}
		results = append(results, SearchResult{
			ID:         rc.ID,
			DocumentID: rc.DocumentID,
			Content:    rc.Content,
			FusedScore: alpha * normalized,
			Similarity: rc.Score,
			Metadata:   rc.Metadata,
		})
		index[rc.ID] = len(results) - 1
	}

	maxLexical := maxScore(lexicalRanked)
	for _, rc := range lexicalRanked {
		normalized := 0.0
		if maxLexical > 0 {
			normalized = rc.Score / maxLexical
		}
		contribution := (1 - alpha) * normalized
		if pos, seen := index[rc.ID]; seen {
			results[pos].FusedScore += contribution
			continue
		}
		results = append(results, SearchResult{
			ID:         rc.ID,
			DocumentID: rc.DocumentID,
			Content:    rc.Content,
			FusedScore: contribution,
			Metadata:   rc.Metadata,
		})
		index[rc.ID] = len(results) - 1
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FusedScore > results[j].FusedScore
	})
	return results
}

// maxFusion keeps each chunk's best normalized stage score.
func (r *HybridRanker) maxFusion(vectorRanked, lexicalRanked []RankedChunk) []SearchResult {
	index := make(map[string]int, len(vectorRanked)+len(lexicalRanked))
	results := make([]SearchResult, 0, len(vectorRanked)+len(lexicalRanked))

	maxVector := maxScore(vectorRanked)
	for _, rc := range vectorRanked {
		normalized := 0.0
		if maxVector > 0 {
			normalized = rc.Score / maxVector
		}
		results = append(results, SearchResult{
			ID:         rc.ID,
			DocumentID: rc.DocumentID,
			Content:    rc.Content,
			FusedScore: normalized,
			Similarity: rc.Score,
			Metadata:   rc.Metadata,
		})
		index[rc.ID] = len(results) - 1
	}

	maxLexical := maxScore(lexicalRanked)
	for _, rc := range lexicalRanked {
		normalized := 0.0
		if maxLexical > 0 {
			normalized = rc.Score / maxLexical
		}
		if pos, seen := index[rc.ID]; seen {
			if normalized > results[pos].FusedScore {
				results[pos].FusedScore = normalized
			}
			continue
		}
		results = append(results, SearchResult{
			ID:         rc.ID,
			DocumentID: rc.DocumentID,
			Content:    rc.Content,
			FusedScore: normalized,
			Metadata:   rc.Metadata,
		})
		index[rc.ID] = len(results) - 1
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FusedScore > results[j].FusedScore
	})
	return results
}

func maxScore(ranked []RankedChunk) float64 {
	max := 0.0
	for _, rc := range ranked {
		if rc.Score > max {
			max = rc.Score
		}
	}
	return max
}
