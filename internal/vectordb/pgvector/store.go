// Package pgvector persists chunks in PostgreSQL with the pgvector
// extension. One table backs both retrieval stages: vector similarity
// through the cosine distance operator and keyword lookup through
// ILIKE substring matching.
package pgvector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"dev.helix.retrieval/internal/rag"
)

// Config holds the store configuration.
type Config struct {
	Host           string        `json:"host" yaml:"host"`
	Port           int           `json:"port" yaml:"port"`
	User           string        `json:"user" yaml:"user"`
	Password       string        `json:"password" yaml:"password"`
	Database       string        `json:"database" yaml:"database"`
	SSLMode        string        `json:"ssl_mode" yaml:"ssl_mode"`
	Table          string        `json:"table" yaml:"table"`
	Dimension      int           `json:"dimension" yaml:"dimension"`
	MaxConns       int32         `json:"max_conns" yaml:"max_conns"`
	MinConns       int32         `json:"min_conns" yaml:"min_conns"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:           "localhost",
		Port:           5432,
		User:           "postgres",
		Database:       "postgres",
		SSLMode:        "disable",
		Table:          "chunks",
		Dimension:      1536,
		MaxConns:       10,
		MinConns:       2,
		ConnectTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 {
		return fmt.Errorf("invalid port")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Table == "" {
		return fmt.Errorf("table is required")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", c.Dimension)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf("host=%s port=%d user=%s dbname=%s",
		c.Host, c.Port, c.User, c.Database)
	if c.Password != "" {
		connStr += fmt.Sprintf(" password=%s", c.Password)
	}
	if c.SSLMode != "" {
		connStr += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	if c.ConnectTimeout > 0 {
		connStr += fmt.Sprintf(" connect_timeout=%d", int(c.ConnectTimeout.Seconds()))
	}
	return connStr
}

// Store is a chunk store on PostgreSQL/pgvector. It implements the
// engine's VectorIndex, LexicalIndex and ChunkStore contracts.
type Store struct {
	config    *Config
	pool      *pgxpool.Pool
	logger    *logrus.Logger
	mu        sync.RWMutex
	connected bool
}

// NewStore creates a store. A nil config uses defaults.
func NewStore(config *Config, logger *logrus.Logger) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{
		config: config,
		logger: logger,
	}, nil
}

// Connect establishes the pool, enables the vector extension and
// creates the chunk table and its indexes.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	poolConfig, err := pgxpool.ParseConfig(s.config.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = s.config.MaxConns
	poolConfig.MinConns = s.config.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		pool.Close()
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}

	if err := s.ensureSchema(ctx, pool); err != nil {
		pool.Close()
		return err
	}

	s.pool = pool
	s.connected = true
	s.logger.WithField("table", s.config.Table).Info("Connected to PostgreSQL with pgvector")
	return nil
}

func (s *Store) ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		content TEXT NOT NULL,
		chunk_index INT NOT NULL,
		page INT NOT NULL DEFAULT 0,
		sentence_count INT NOT NULL DEFAULT 0,
		similarity REAL NOT NULL DEFAULT 0,
		embedding vector(%d),
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	)`, s.config.Table, s.config.Dimension)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	vectorIndex := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)",
		s.config.Table, s.config.Table)
	if _, err := pool.Exec(ctx, vectorIndex); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	docIndex := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s_document_id_idx ON %s (document_id)",
		s.config.Table, s.config.Table)
	if _, err := pool.Exec(ctx, docIndex); err != nil {
		return fmt.Errorf("failed to create document index: %w", err)
	}

	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	s.connected = false
	return nil
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected || s.pool == nil {
		return fmt.Errorf("not connected")
	}
	return s.pool.Ping(ctx)
}

// UpsertChunks inserts or updates chunk rows. Chunks without an
// embedding are stored with a NULL vector; the vector stage skips them
// until the embedding lands.
func (s *Store) UpsertChunks(ctx context.Context, chunks []rag.IndexedChunk) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return fmt.Errorf("not connected")
	}
	if len(chunks) == 0 {
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO %s
		(id, document_id, content, chunk_index, page, sentence_count, similarity, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			chunk_index = EXCLUDED.chunk_index,
			page = EXCLUDED.page,
			sentence_count = EXCLUDED.sentence_count,
			similarity = EXCLUDED.similarity,
			embedding = COALESCE(EXCLUDED.embedding, %s.embedding),
			updated_at = NOW()`, s.config.Table, s.config.Table)

	batch := &pgx.Batch{}
	for _, ic := range chunks {
		var embedding interface{}
		if ic.Embedding != nil {
			embedding = vectorToString(ic.Embedding)
		}
		batch.Queue(query,
			ic.ID,
			ic.DocumentID,
			ic.Chunk.Content,
			ic.Chunk.Index,
			ic.Chunk.Page,
			ic.Chunk.SentenceCount,
			ic.Chunk.Similarity,
			embedding,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert chunk: %w", err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"table": s.config.Table,
		"count": len(chunks),
	}).Debug("Chunks upserted")

	return nil
}

// DeleteDocument deletes all chunks of a document.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return fmt.Errorf("not connected")
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", s.config.Table)
	tag, err := s.pool.Exec(ctx, query, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": documentID,
		"deleted":     tag.RowsAffected(),
	}).Debug("Document chunks deleted")

	return nil
}

// QueryTopK returns up to k chunks by ascending cosine distance,
// filtered to similarity (1 - distance) >= minSimilarity and optionally
// to a document subset.
func (s *Store) QueryTopK(ctx context.Context, vector []float32, k int, minSimilarity float64, documentIDs []string) ([]rag.RankedChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return nil, fmt.Errorf("not connected")
	}
	if k <= 0 {
		k = 10
	}

	query := buildVectorQuery(s.config.Table, len(documentIDs) > 0)
	args := []interface{}{vectorToString(vector), minSimilarity}
	if len(documentIDs) > 0 {
		args = append(args, documentIDs)
	}
	args = append(args, k)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}
	defer rows.Close()

	return scanRankedChunks(rows)
}

// QueryKeywords returns up to k chunks matching any keyword as a
// substring (case-insensitive), ranked by how many keywords matched.
func (s *Store) QueryKeywords(ctx context.Context, keywords []string, k int, documentIDs []string) ([]rag.RankedChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return nil, fmt.Errorf("not connected")
	}
	if len(keywords) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}

	query := buildKeywordQuery(s.config.Table, len(keywords), len(documentIDs) > 0)
	args := make([]interface{}, 0, len(keywords)+2)
	for _, kw := range keywords {
		args = append(args, "%"+kw+"%")
	}
	if len(documentIDs) > 0 {
		args = append(args, documentIDs)
	}
	args = append(args, k)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword query failed: %w", err)
	}
	defer rows.Close()

	return scanRankedChunks(rows)
}

// buildVectorQuery builds the cosine-distance query. The similarity
// reported to callers is 1 - distance.
func buildVectorQuery(table string, withScope bool) string {
	query := fmt.Sprintf(
		`SELECT id, document_id, content, chunk_index, page, 1 - (embedding <=> $1::vector) AS score FROM %s WHERE embedding IS NOT NULL AND 1 - (embedding <=> $1::vector) >= $2`,
		table)
	arg := 3
	if withScope {
		query += fmt.Sprintf(" AND document_id = ANY($%d)", arg)
		arg++
	}
	query += fmt.Sprintf(" ORDER BY embedding <=> $1::vector LIMIT $%d", arg)
	return query
}

// buildKeywordQuery builds the OR-semantics substring query. Relevance
// is the number of distinct keywords the chunk matched.
func buildKeywordQuery(table string, numKeywords int, withScope bool) string {
	likes := make([]string, numKeywords)
	cases := make([]string, numKeywords)
	for i := 0; i < numKeywords; i++ {
		placeholder := fmt.Sprintf("$%d", i+1)
		likes[i] = fmt.Sprintf("content ILIKE %s", placeholder)
		cases[i] = fmt.Sprintf("(CASE WHEN content ILIKE %s THEN 1 ELSE 0 END)", placeholder)
	}

	query := fmt.Sprintf(
		"SELECT id, document_id, content, chunk_index, page, (%s)::float8 AS score FROM %s WHERE (%s)",
		strings.Join(cases, " + "), table, strings.Join(likes, " OR "))
	arg := numKeywords + 1
	if withScope {
		query += fmt.Sprintf(" AND document_id = ANY($%d)", arg)
		arg++
	}
	query += fmt.Sprintf(" ORDER BY score DESC, id LIMIT $%d", arg)
	return query
}

func scanRankedChunks(rows pgx.Rows) ([]rag.RankedChunk, error) {
	results := make([]rag.RankedChunk, 0)
	for rows.Next() {
		var rc rag.RankedChunk
		var chunkIndex, page int
		if err := rows.Scan(&rc.ID, &rc.DocumentID, &rc.Content, &chunkIndex, &page, &rc.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rc.Metadata = map[string]interface{}{
			"chunk_index": chunkIndex,
			"page":        page,
		}
		results = append(results, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// vectorToString converts a vector to the pgvector literal format.
func vectorToString(v []float32) string {
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = fmt.Sprintf("%f", val)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
