package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	require.NotNil(t, c)

	// Registration is per-collector, so two collectors must not clash.
	assert.NotPanics(t, func() { NewCollector() })

	c.ChunkingDuration.WithLabelValues("semantic").Observe(0.01)
	c.ChunksProduced.WithLabelValues("window").Add(3)
	c.EmbeddingLatency.Observe(0.2)
	c.EmbeddingBatchSize.Observe(20)
	c.SearchStageLatency.WithLabelValues("vector").Observe(0.005)
	c.RerankDegradations.WithLabelValues("disabled").Inc()
	c.ChunksIndexed.Add(5)

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["retrieval_chunking_duration_seconds"])
	assert.True(t, names["retrieval_chunks_produced_total"])
	assert.True(t, names["retrieval_embedding_batch_latency_seconds"])
	assert.True(t, names["retrieval_search_stage_latency_seconds"])
	assert.True(t, names["retrieval_rerank_degradations_total"])
	assert.True(t, names["retrieval_chunks_indexed_total"])
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.ChunksIndexed.Add(2)

	recorder := httptest.NewRecorder()
	c.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "retrieval_chunks_indexed_total 2")
}
