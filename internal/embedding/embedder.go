// Package embedding provides embedding providers for the retrieval
// engine.
package embedding

import (
	"context"
	"math"
)

// Embedder maps text to a fixed-length vector. EmbedBatch is
// order-preserving and returns exactly one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// l2normalize scales v to unit length in place. Normalized vectors make
// inner product and cosine similarity interchangeable downstream.
func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
