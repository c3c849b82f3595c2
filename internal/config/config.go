// Package config loads retrieval service configuration from the
// environment, with an optional YAML file for defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"dev.helix.retrieval/internal/chunker"
	"dev.helix.retrieval/internal/embedding"
	"dev.helix.retrieval/internal/rag"
	"dev.helix.retrieval/internal/vectordb/pgvector"
	"dev.helix.retrieval/internal/vectordb/qdrant"
)

// Config is the top-level service configuration.
type Config struct {
	Service   ServiceConfig            `yaml:"service"`
	Database  pgvector.Config          `yaml:"database"`
	Qdrant    QdrantConfig             `yaml:"qdrant"`
	Embedding embedding.OpenAIConfig   `yaml:"embedding"`
	Window    chunker.WindowConfig     `yaml:"window_chunking"`
	Semantic  chunker.SimilarityConfig `yaml:"semantic_chunking"`
	Ranker    rag.RankerConfig         `yaml:"ranker"`
	Reranker  rag.RerankerConfig       `yaml:"reranker"`
}

// ServiceConfig holds service-level settings.
type ServiceConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"` // "text" or "json"
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr"`
	IndexBatchSize int    `yaml:"index_batch_size"`
}

// QdrantConfig enables the optional Qdrant backend.
type QdrantConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Collection string        `yaml:"collection"`
	Client     qdrant.Config `yaml:",inline"`
}

// Load builds the configuration from environment variables. A .env file
// in the working directory is loaded first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Service: ServiceConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "text"),
			MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),
			MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
			IndexBatchSize: getIntEnv("INDEX_BATCH_SIZE", 20),
		},
		Database: pgvector.Config{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getIntEnv("DB_PORT", 5432),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", ""),
			Database:       getEnv("DB_NAME", "retrieval"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			Table:          getEnv("DB_CHUNK_TABLE", "chunks"),
			Dimension:      getIntEnv("EMBEDDING_DIMENSION", 1536),
			MaxConns:       int32(getIntEnv("DB_MAX_CONNS", 10)),
			MinConns:       int32(getIntEnv("DB_MIN_CONNS", 2)),
			ConnectTimeout: getDurationEnv("DB_CONNECT_TIMEOUT", 10*time.Second),
		},
		Qdrant: QdrantConfig{
			Enabled:    getBoolEnv("QDRANT_ENABLED", false),
			Collection: getEnv("QDRANT_COLLECTION", "chunks"),
			Client: qdrant.Config{
				URL:     getEnv("QDRANT_URL", "http://localhost:6333"),
				APIKey:  getEnv("QDRANT_API_KEY", ""),
				Timeout: getDurationEnv("QDRANT_TIMEOUT", 30*time.Second),
			},
		},
		Embedding: embedding.OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			Model:          getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			BaseURL:        getEnv("OPENAI_BASE_URL", ""),
			MaxConcurrency: getIntEnv("EMBEDDING_MAX_CONCURRENCY", 10),
			Timeout:        getDurationEnv("EMBEDDING_TIMEOUT", 30*time.Second),
		},
		Window: chunker.WindowConfig{
			ChunkSize:    getIntEnv("CHUNK_SIZE", 1000),
			ChunkOverlap: getIntEnv("CHUNK_OVERLAP", 200),
		},
		Semantic: chunker.SimilarityConfig{
			MaxChunkSize:        getIntEnv("SEMANTIC_MAX_CHUNK_SIZE", 1500),
			MinChunkSize:        getIntEnv("SEMANTIC_MIN_CHUNK_SIZE", 200),
			SimilarityThreshold: getFloatEnv("SEMANTIC_SIMILARITY_THRESHOLD", 0.75),
			SentenceWindow:      getIntEnv("SEMANTIC_SENTENCE_WINDOW", 3),
		},
		Ranker: rag.RankerConfig{
			FusionMethod:          rag.FusionMethod(getEnv("FUSION_METHOD", string(rag.FusionRRF))),
			RRFK:                  getIntEnv("RRF_K", 60),
			PreRetrieveMultiplier: getIntEnv("PRE_RETRIEVE_MULTIPLIER", 2),
			Alpha:                 getFloatEnv("FUSION_ALPHA", 0.5),
		},
		Reranker: rag.RerankerConfig{
			Enabled:  getBoolEnv("RERANKER_ENABLED", false),
			Endpoint: getEnv("RERANKER_ENDPOINT", ""),
			Model:    getEnv("RERANKER_MODEL", "BAAI/bge-reranker-v2-m3"),
			APIKey:   getEnv("RERANKER_API_KEY", ""),
			Timeout:  getDurationEnv("RERANKER_TIMEOUT", 30*time.Second),
		},
	}
}

// LoadFile reads a YAML configuration file over the environment
// defaults. Env vars win for keys set in both.
func LoadFile(path string) (*Config, error) {
	cfg := Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the sections needed for indexing and search.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.Qdrant.Enabled {
		if err := c.Qdrant.Client.Validate(); err != nil {
			return fmt.Errorf("qdrant: %w", err)
		}
	}
	if err := c.Embedding.Validate(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := c.Window.Validate(); err != nil {
		return fmt.Errorf("window_chunking: %w", err)
	}
	if err := c.Semantic.Validate(); err != nil {
		return fmt.Errorf("semantic_chunking: %w", err)
	}
	if err := c.Ranker.Validate(); err != nil {
		return fmt.Errorf("ranker: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
