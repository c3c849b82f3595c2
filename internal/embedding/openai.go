package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// OpenAIConfig configures the OpenAI embedding provider.
type OpenAIConfig struct {
	APIKey string `json:"api_key" yaml:"api_key"`
	// Model is the embedding model name, e.g. text-embedding-3-small.
	Model string `json:"model" yaml:"model"`
	// BaseURL overrides the API endpoint for compatible providers.
	BaseURL string `json:"base_url" yaml:"base_url"`
	// MaxConcurrency bounds in-flight requests within one batch call.
	MaxConcurrency int           `json:"max_concurrency" yaml:"max_concurrency"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultOpenAIConfig returns the default OpenAI embedding config.
func DefaultOpenAIConfig() *OpenAIConfig {
	return &OpenAIConfig{
		Model:          string(openai.SmallEmbedding3),
		MaxConcurrency: 10,
		Timeout:        30 * time.Second,
	}
}

// Validate checks the configuration.
func (c *OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	return nil
}

// OpenAIEmbedder generates embeddings through the OpenAI API. Vectors
// are L2-normalized so cosine similarity equals the inner product.
type OpenAIEmbedder struct {
	client *openai.Client
	config *OpenAIConfig
	dim    int
	logger *logrus.Logger
}

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(config *OpenAIConfig, logger *logrus.Logger) (*OpenAIEmbedder, error) {
	if config == nil {
		config = DefaultOpenAIConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedding config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	dim := 1536
	if config.Model == string(openai.LargeEmbedding3) {
		dim = 3072
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		dim:    dim,
		logger: logger,
	}, nil
}

// Embed generates one embedding.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.config.Model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data returned")
	}

	vector := make([]float32, len(resp.Data[0].Embedding))
	copy(vector, resp.Data[0].Embedding)
	l2normalize(vector)
	return vector, nil
}

// EmbedBatch embeds all texts with bounded concurrency, preserving
// input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.MaxConcurrency)

	for i := range texts {
		i := i
		g.Go(func() error {
			vector, err := e.Embed(gctx, texts[i])
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			vectors[i] = vector
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.WithField("count", len(texts)).Debug("Embedding batch completed")
	return vectors, nil
}

// Dimension returns the embedding dimension.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dim
}

// ModelName returns the embedding model name.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}
