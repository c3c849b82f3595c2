// Package qdrant provides an HTTP client for the Qdrant REST API,
// used as an alternative vector index backend for chunk retrieval.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds Qdrant connection configuration.
type Config struct {
	URL     string        `json:"url" yaml:"url"`
	APIKey  string        `json:"api_key" yaml:"api_key"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the default Qdrant configuration.
func DefaultConfig() *Config {
	return &Config{
		URL:     "http://localhost:6333",
		Timeout: 30 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("url must start with http:// or https://")
	}
	return nil
}

// Point is a vector point with its chunk payload.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// ScoredPoint is a search hit. For cosine collections the score is the
// cosine similarity.
type ScoredPoint struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// SearchParams configures one search call.
type SearchParams struct {
	Limit          int
	ScoreThreshold float64
	// DocumentIDs restricts hits to points whose document_id payload
	// field matches any of the ids.
	DocumentIDs []string
}

// Client talks to the Qdrant REST API.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *logrus.Logger
	mu         sync.RWMutex
	connected  bool
}

// NewClient creates a Qdrant client. A nil config uses defaults.
func NewClient(config *Config, logger *logrus.Logger) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

// Connect verifies connectivity to Qdrant.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.healthCheckLocked(ctx); err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	c.connected = true
	c.logger.WithField("url", c.config.URL).Info("Connected to Qdrant")
	return nil
}

// Close marks the client disconnected.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

// HealthCheck checks Qdrant availability.
func (c *Client) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthCheckLocked(ctx)
}

func (c *Client) healthCheckLocked(ctx context.Context) error {
	// The root endpoint works across Qdrant versions; 1.16+ dropped
	// the /health endpoint.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.config.APIKey != "" {
		req.Header.Set("api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	url := c.config.URL + path

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// EnsureCollection creates a cosine-distance collection if it does not
// exist yet.
func (c *Client) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return fmt.Errorf("not connected to Qdrant")
	}
	if vectorSize <= 0 {
		return fmt.Errorf("vector size must be positive, got %d", vectorSize)
	}

	path := fmt.Sprintf("/collections/%s", collection)
	if _, err := c.doRequest(ctx, http.MethodGet, path, nil); err == nil {
		return nil
	}

	reqBody := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	if _, err := c.doRequest(ctx, http.MethodPut, path, reqBody); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	c.logger.WithField("collection", collection).Info("Collection created")
	return nil
}

// UpsertPoints inserts or updates points.
func (c *Client) UpsertPoints(ctx context.Context, collection string, points []Point) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return fmt.Errorf("not connected to Qdrant")
	}
	if len(points) == 0 {
		return nil
	}

	reqBody := map[string]interface{}{
		"points": points,
	}
	path := fmt.Sprintf("/collections/%s/points", collection)
	if _, err := c.doRequest(ctx, http.MethodPut, path, reqBody); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"collection": collection,
		"count":      len(points),
	}).Debug("Points upserted")
	return nil
}

// DeleteByDocument deletes all points whose document_id payload field
// matches the given id.
func (c *Client) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return fmt.Errorf("not connected to Qdrant")
	}

	reqBody := map[string]interface{}{
		"filter": documentFilter([]string{documentID}),
	}
	path := fmt.Sprintf("/collections/%s/points/delete", collection)
	if _, err := c.doRequest(ctx, http.MethodPost, path, reqBody); err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"collection":  collection,
		"document_id": documentID,
	}).Debug("Document points deleted")
	return nil
}

// Search performs a vector similarity search.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, params *SearchParams) ([]ScoredPoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return nil, fmt.Errorf("not connected to Qdrant")
	}
	if params == nil {
		params = &SearchParams{Limit: 10}
	}

	reqBody := map[string]interface{}{
		"vector":       vector,
		"limit":        params.Limit,
		"with_payload": true,
	}
	if params.ScoreThreshold > 0 {
		reqBody["score_threshold"] = params.ScoreThreshold
	}
	if len(params.DocumentIDs) > 0 {
		reqBody["filter"] = documentFilter(params.DocumentIDs)
	}

	path := fmt.Sprintf("/collections/%s/points/search", collection)
	respBody, err := c.doRequest(ctx, http.MethodPost, path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var response struct {
		Result []ScoredPoint `json:"result"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return response.Result, nil
}

func documentFilter(documentIDs []string) map[string]interface{} {
	return map[string]interface{}{
		"must": []map[string]interface{}{
			{
				"key": "document_id",
				"match": map[string]interface{}{
					"any": documentIDs,
				},
			},
		},
	}
}
