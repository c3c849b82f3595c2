package pgvector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		cases := []struct {
			name   string
			mutate func(*Config)
		}{
			{"empty host", func(c *Config) { c.Host = "" }},
			{"invalid port", func(c *Config) { c.Port = 0 }},
			{"empty user", func(c *Config) { c.User = "" }},
			{"empty database", func(c *Config) { c.Database = "" }},
			{"empty table", func(c *Config) { c.Table = "" }},
			{"zero dimension", func(c *Config) { c.Dimension = 0 }},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				cfg := DefaultConfig()
				tc.mutate(cfg)
				assert.Error(t, cfg.Validate())
			})
		}
	})
}

func TestConfig_ConnectionString(t *testing.T) {
	cfg := &Config{
		Host:     "db.internal",
		Port:     5433,
		User:     "retrieval",
		Password: "secret",
		Database: "chunks_db",
		SSLMode:  "require",
	}
	connStr := cfg.ConnectionString()
	assert.Contains(t, connStr, "host=db.internal")
	assert.Contains(t, connStr, "port=5433")
	assert.Contains(t, connStr, "user=retrieval")
	assert.Contains(t, connStr, "password=secret")
	assert.Contains(t, connStr, "dbname=chunks_db")
	assert.Contains(t, connStr, "sslmode=require")

	cfg.Password = ""
	assert.NotContains(t, cfg.ConnectionString(), "password")
}

func TestNewStore(t *testing.T) {
	t.Run("nil config uses defaults", func(t *testing.T) {
		s, err := NewStore(nil, nil)
		require.NoError(t, err)
		require.NotNil(t, s)
	})

	t.Run("invalid config is rejected", func(t *testing.T) {
		_, err := NewStore(&Config{}, nil)
		require.Error(t, err)
	})
}

func TestBuildVectorQuery(t *testing.T) {
	t.Run("without document scope", func(t *testing.T) {
		query := buildVectorQuery("chunks", false)
		assert.Contains(t, query, "embedding IS NOT NULL")
		assert.Contains(t, query, "1 - (embedding <=> $1::vector) >= $2")
		assert.Contains(t, query, "ORDER BY embedding <=> $1::vector LIMIT $3")
		assert.NotContains(t, query, "ANY")
	})

	t.Run("with document scope", func(t *testing.T) {
		query := buildVectorQuery("chunks", true)
		assert.Contains(t, query, "document_id = ANY($3)")
		assert.Contains(t, query, "LIMIT $4")
	})
}

func TestBuildKeywordQuery(t *testing.T) {
	t.Run("or semantics with match count", func(t *testing.T) {
		query := buildKeywordQuery("chunks", 2, false)
		assert.Contains(t, query, "content ILIKE $1 OR content ILIKE $2")
		assert.Contains(t, query, "CASE WHEN content ILIKE $1 THEN 1 ELSE 0 END")
		assert.Contains(t, query, "ORDER BY score DESC, id LIMIT $3")
	})

	t.Run("with document scope", func(t *testing.T) {
		query := buildKeywordQuery("chunks", 3, true)
		assert.Contains(t, query, "document_id = ANY($4)")
		assert.Contains(t, query, "LIMIT $5")
	})
}

func TestVectorToString(t *testing.T) {
	assert.Equal(t, "[1.000000,0.500000,-0.250000]", vectorToString([]float32{1, 0.5, -0.25}))
	assert.Equal(t, "[]", vectorToString(nil))
}
