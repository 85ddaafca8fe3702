package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lkirch/sciencesage/rag/interfaces"
	"github.com/lkirch/sciencesage/rag/types"
	"github.com/mudler/xlog"
	"github.com/pgvector/pgvector-go"
)

// PostgresIndex is an Index backed by PostgreSQL with the pgvector extension.
type PostgresIndex struct {
	pool           *pgxpool.Pool
	collectionName string
	tableName      string
	embeddingDims  int
}

// NewPostgresIndex connects to databaseURL and prepares the passages table for vectors of
// embeddingDims dimensions.
func NewPostgresIndex(ctx context.Context, collectionName, databaseURL string, embeddingDims int) (*PostgresIndex, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for PostgreSQL index")
	}
	if embeddingDims <= 0 {
		return nil, fmt.Errorf("invalid embedding dimensions: %d", embeddingDims)
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pg := &PostgresIndex{
		pool:           pool,
		collectionName: collectionName,
		tableName:      sanitizeTableName(collectionName),
		embeddingDims:  embeddingDims,
	}

	if err := pg.setupDatabase(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}

	if err := pg.checkDimensions(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pg, nil
}

func sanitizeTableName(name string) string {
	// Replace invalid characters with underscores
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, " ", "_")
	// Ensure it starts with a letter
	if len(name) > 0 && (name[0] < 'a' || name[0] > 'z') && (name[0] < 'A' || name[0] > 'Z') {
		name = "col_" + name
	}
	return "passages_" + name
}

// Close releases the connection pool.
func (p *PostgresIndex) Close() {
	p.pool.Close()
}

func (p *PostgresIndex) setupDatabase(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}

	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS collection_config (
			collection_name TEXT PRIMARY KEY,
			embedding_dimensions INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create collection_config table: %w", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			title TEXT,
			source_url TEXT,
			topics TEXT[] NOT NULL DEFAULT '{}',
			chunk_index INTEGER NOT NULL DEFAULT 0,
			char_start INTEGER NOT NULL DEFAULT 0,
			char_end INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ,
			embedding VECTOR(%d) NOT NULL
		)
	`, p.tableName, p.embeddingDims))
	if err != nil {
		return fmt.Errorf("failed to create passages table: %w", err)
	}

	// GIN index for the topic membership filter
	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_topics ON %s USING GIN(topics)
	`, p.tableName, p.tableName))
	if err != nil {
		xlog.Warn("Failed to create GIN index", "error", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s
		USING hnsw(embedding vector_cosine_ops)
	`, p.tableName, p.tableName))
	if err != nil {
		xlog.Warn("Failed to create HNSW index", "error", err)
	} else {
		xlog.Info("Created HNSW index for vector search (pgvector)", "table", p.tableName)
	}

	return nil
}

// checkDimensions records the embedding size of a new collection and refuses to open an
// existing one built with a different embedding model.
func (p *PostgresIndex) checkDimensions(ctx context.Context) error {
	var storedDims int
	err := p.pool.QueryRow(ctx, `
		SELECT embedding_dimensions
		FROM collection_config
		WHERE collection_name = $1
	`, p.collectionName).Scan(&storedDims)

	if errors.Is(err, pgx.ErrNoRows) {
		_, err = p.pool.Exec(ctx, `
			INSERT INTO collection_config (collection_name, embedding_dimensions)
			VALUES ($1, $2)
		`, p.collectionName, p.embeddingDims)
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to query collection config: %w", err)
	}

	if storedDims != p.embeddingDims {
		return fmt.Errorf("collection %s holds %d-dimensional embeddings, the embedder produces %d: reset and re-ingest",
			p.collectionName, storedDims, p.embeddingDims)
	}
	return nil
}

func (p *PostgresIndex) Count(ctx context.Context) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", p.tableName)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count passages: %w", err)
	}
	return count, nil
}

func (p *PostgresIndex) Reset(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", p.tableName))
	if err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}

	_, err = p.pool.Exec(ctx, "DELETE FROM collection_config WHERE collection_name = $1", p.collectionName)
	if err != nil {
		return fmt.Errorf("failed to delete collection config: %w", err)
	}

	if err := p.setupDatabase(ctx); err != nil {
		return err
	}
	return p.checkDimensions(ctx)
}

func (p *PostgresIndex) Upsert(ctx context.Context, passages []types.Passage, vectors [][]float32) error {
	if len(passages) != len(vectors) {
		return fmt.Errorf("passage/vector count mismatch: %d vs %d", len(passages), len(vectors))
	}
	if len(passages) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, text, title, source_url, topics, chunk_index, char_start, char_end, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::vector)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			title = EXCLUDED.title,
			source_url = EXCLUDED.source_url,
			topics = EXCLUDED.topics,
			chunk_index = EXCLUDED.chunk_index,
			char_start = EXCLUDED.char_start,
			char_end = EXCLUDED.char_end,
			created_at = EXCLUDED.created_at,
			embedding = EXCLUDED.embedding
	`, p.tableName)

	batch := &pgx.Batch{}
	for i, ps := range passages {
		if len(vectors[i]) != p.embeddingDims {
			return fmt.Errorf("passage %s: expected %d dimensions, got %d", ps.ID, p.embeddingDims, len(vectors[i]))
		}
		topics := ps.Topics
		if topics == nil {
			topics = []string{}
		}
		var createdAt *time.Time
		if !ps.CreatedAt.IsZero() {
			createdAt = &ps.CreatedAt
		}
		batch.Queue(query, ps.ID, ps.Text, ps.Title, ps.SourceURL, topics,
			ps.ChunkIndex, ps.CharStart, ps.CharEnd, createdAt, pgvector.NewVector(vectors[i]))
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range passages {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert passage %s: %w", passages[i].ID, err)
		}
	}

	return nil
}

func (p *PostgresIndex) Search(ctx context.Context, vector []float32, filter interfaces.SearchFilter, limit int) ([]types.Candidate, error) {
	if limit <= 0 {
		return []types.Candidate{}, nil
	}

	query := fmt.Sprintf(`
		SELECT
			id,
			text,
			COALESCE(title, ''),
			COALESCE(source_url, ''),
			topics,
			chunk_index,
			char_start,
			char_end,
			created_at,
			1 - (embedding <=> $1::vector) AS similarity
		FROM %s
		WHERE $2 = '' OR $2 = ANY(topics)
		ORDER BY embedding <=> $1::vector
		LIMIT $3
	`, p.tableName)

	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vector), filter.Topic, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer rows.Close()

	candidates := []types.Candidate{}
	for rows.Next() {
		var c types.Candidate
		var createdAt *time.Time
		var similarity float64

		err := rows.Scan(&c.ID, &c.Text, &c.Title, &c.SourceURL, &c.Topics,
			&c.ChunkIndex, &c.CharStart, &c.CharEnd, &createdAt, &similarity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		if createdAt != nil {
			c.CreatedAt = *createdAt
		}
		c.Similarity = float32(similarity)
		c.Rank = len(candidates)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}

	return candidates, nil
}
