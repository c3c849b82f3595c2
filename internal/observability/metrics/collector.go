// Package metrics holds the retrieval engine's Prometheus collector.
// The collector is constructed and registered explicitly and passed to
// the components that record into it; there are no package-level
// metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the engine's metrics.
type Collector struct {
	// Chunking metrics
	ChunkingDuration *prometheus.HistogramVec
	ChunksProduced   *prometheus.CounterVec

	// Embedding metrics
	EmbeddingLatency   prometheus.Histogram
	EmbeddingBatchSize prometheus.Histogram

	// Search metrics
	SearchStageLatency *prometheus.HistogramVec
	RerankDegradations *prometheus.CounterVec

	// Indexing metrics
	ChunksIndexed prometheus.Counter

	registry *prometheus.Registry
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		ChunkingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieval_chunking_duration_seconds",
				Help:    "Chunking duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15},
			},
			[]string{"strategy"},
		),
		ChunksProduced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retrieval_chunks_produced_total",
				Help: "Total chunks produced per chunking strategy",
			},
			[]string{"strategy"},
		),
		EmbeddingLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "retrieval_embedding_batch_latency_seconds",
				Help:    "Embedding batch latency in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		EmbeddingBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "retrieval_embedding_batch_size",
				Help:    "Number of texts per embedding batch",
				Buckets: []float64{1, 5, 10, 20, 50, 100},
			},
		),
		SearchStageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieval_search_stage_latency_seconds",
				Help:    "Latency of the vector and lexical search stages",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"stage"},
		),
		RerankDegradations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retrieval_rerank_degradations_total",
				Help: "Times reranking fell back to the fused order",
			},
			[]string{"reason"},
		),
		ChunksIndexed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "retrieval_chunks_indexed_total",
				Help: "Total chunks written to the store",
			},
		),
		registry: prometheus.NewRegistry(),
	}

	c.registry.MustRegister(
		c.ChunkingDuration,
		c.ChunksProduced,
		c.EmbeddingLatency,
		c.EmbeddingBatchSize,
		c.SearchStageLatency,
		c.RerankDegradations,
		c.ChunksIndexed,
	)

	return c
}

// Handler returns an HTTP handler exposing the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
