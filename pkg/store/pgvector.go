package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/driftrag/internal/models"
	"github.com/xhad/driftrag/internal/types"
)

type PostgresConfig struct {
	ConnString  string
	TablePrefix string
	VectorDim   int
}

// PostgresStore keeps snapshots in Postgres with chunk vectors in pgvector columns.
type PostgresStore struct {
	config    PostgresConfig
	pool      *pgxpool.Pool
	snapshots string
	chunks    string
}

func NewPostgresStore(ctx context.Context, config PostgresConfig) (*PostgresStore, error) {
	if config.ConnString == "" {
		return nil, errors.New("postgres connection string is required")
	}
	if config.TablePrefix == "" {
		config.TablePrefix = "driftrag"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // Default for OpenAI embeddings
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ps := &PostgresStore{
		config:    config,
		pool:      pool,
		snapshots: pgx.Identifier{config.TablePrefix + "_snapshots"}.Sanitize(),
		chunks:    pgx.Identifier{config.TablePrefix + "_chunks"}.Sanitize(),
	}

	if err := ps.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return ps, nil
}

func (ps *PostgresStore) initialize(ctx context.Context) error {
	if err := ps.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}

	// Enable pgvector extension
	if _, err := ps.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id            TEXT PRIMARY KEY,
				collection    TEXT NOT NULL,
				url           TEXT NOT NULL,
				title         TEXT NOT NULL,
				original_text TEXT NOT NULL,
				changes       JSONB NOT NULL,
				previous_id   TEXT,
				created_at    TIMESTAMPTZ NOT NULL,
				seq           BIGSERIAL
			)`, ps.snapshots),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (collection, url, created_at DESC)`,
			pgx.Identifier{ps.config.TablePrefix + "_snapshots_source_idx"}.Sanitize(), ps.snapshots),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				snapshot_id  TEXT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
				collection   TEXT NOT NULL,
				source_id    TEXT NOT NULL,
				source_title TEXT NOT NULL,
				chunk_index  INTEGER NOT NULL,
				content      TEXT NOT NULL,
				embedding    vector(%d) NOT NULL,
				created_at   TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (snapshot_id, chunk_index)
			)`, ps.chunks, ps.snapshots, ps.config.VectorDim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (collection)`,
			pgx.Identifier{ps.config.TablePrefix + "_chunks_collection_idx"}.Sanitize(), ps.chunks),
	}

	for _, stmt := range statements {
		if _, err := ps.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

func (ps *PostgresStore) InsertSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	if _, err := prepareSnapshot(snapshot, ps.config.VectorDim); err != nil {
		return err
	}

	changes, err := json.Marshal(snapshot.ChangesFromPrevious)
	if err != nil {
		return fmt.Errorf("failed to encode changes: %w", err)
	}

	// Begin transaction
	tx, err := ps.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var previousID *string
	if snapshot.PreviousID != "" {
		previousID = &snapshot.PreviousID
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, collection, url, title, original_text, changes, previous_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, ps.snapshots),
		snapshot.ID, snapshot.Collection, snapshot.URL, snapshot.Title, snapshot.OriginalText,
		string(changes), previousID, snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	if len(snapshot.Chunks) > 0 {
		stmt := fmt.Sprintf(`
			INSERT INTO %s (snapshot_id, collection, source_id, source_title, chunk_index, content, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, ps.chunks)

		batch := &pgx.Batch{}
		for _, c := range snapshot.Chunks {
			batch.Queue(stmt, c.SnapshotID, snapshot.Collection, c.SourceID, c.SourceTitle,
				c.Index, c.Text, pgvector.NewVector(c.Vector), c.CreatedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (ps *PostgresStore) FindLatestSnapshot(ctx context.Context, collection, url string) (*models.Snapshot, error) {
	snapshot := models.Snapshot{Collection: collection, URL: url}

	var (
		changes    []byte
		previousID *string
	)
	err := ps.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, title, original_text, changes, previous_id, created_at
		FROM %s
		WHERE collection = $1 AND url = $2
		ORDER BY created_at DESC, seq DESC
		LIMIT 1`, ps.snapshots), collection, url,
	).Scan(&snapshot.ID, &snapshot.Title, &snapshot.OriginalText, &changes, &previousID, &snapshot.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	if err := json.Unmarshal(changes, &snapshot.ChangesFromPrevious); err != nil {
		return nil, fmt.Errorf("failed to decode changes: %w", err)
	}
	if snapshot.ChangesFromPrevious == nil {
		snapshot.ChangesFromPrevious = []models.ChangeRun{}
	}
	if previousID != nil {
		snapshot.PreviousID = *previousID
	}
	snapshot.CreatedAt = snapshot.CreatedAt.UTC()

	rows, err := ps.pool.Query(ctx, fmt.Sprintf(`
		SELECT snapshot_id, source_id, source_title, chunk_index, content, embedding, created_at
		FROM %s
		WHERE snapshot_id = $1
		ORDER BY chunk_index`, ps.chunks), snapshot.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot chunks: %w", err)
	}
	defer rows.Close()

	snapshot.Chunks, err = scanPostgresChunks(rows)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (ps *PostgresStore) ScanAllChunks(ctx context.Context, collection string) ([]models.Chunk, error) {
	rows, err := ps.pool.Query(ctx, fmt.Sprintf(`
		SELECT snapshot_id, source_id, source_title, chunk_index, content, embedding, created_at
		FROM %s
		WHERE collection = $1
		ORDER BY created_at, snapshot_id, chunk_index`, ps.chunks), collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	return scanPostgresChunks(rows)
}

// NearestChunks ranks a collection's chunks by cosine similarity inside
// Postgres. The scan is exact; no approximate index is created.
func (ps *PostgresStore) NearestChunks(ctx context.Context, collection string, vector []float32, limit int) ([]models.RankedChunk, error) {
	if len(vector) != ps.config.VectorDim {
		return nil, fmt.Errorf("query has %d dimensions, store expects %d: %w",
			len(vector), ps.config.VectorDim, types.ErrDimensionMismatch)
	}

	rows, err := ps.pool.Query(ctx, fmt.Sprintf(`
		SELECT snapshot_id, source_id, source_title, chunk_index, content, embedding, created_at,
			1 - (embedding <=> $2) AS score
		FROM %s
		WHERE collection = $1
		ORDER BY embedding <=> $2, created_at, snapshot_id, chunk_index
		LIMIT $3`, ps.chunks), collection, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest chunks: %w", err)
	}
	defer rows.Close()

	ranked := []models.RankedChunk{}
	for rows.Next() {
		var (
			r         models.RankedChunk
			embedding pgvector.Vector
		)
		if err := rows.Scan(&r.SnapshotID, &r.SourceID, &r.SourceTitle, &r.Index, &r.Text,
			&embedding, &r.CreatedAt, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Vector = embedding.Slice()
		r.CreatedAt = r.CreatedAt.UTC()
		ranked = append(ranked, r)
	}
	return ranked, rows.Err()
}

func (ps *PostgresStore) TrackedURLs(ctx context.Context, collection string) ([]string, error) {
	rows, err := ps.pool.Query(ctx, fmt.Sprintf(
		"SELECT DISTINCT url FROM %s WHERE collection = $1 ORDER BY url", ps.snapshots), collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked urls: %w", err)
	}
	defer rows.Close()

	urls := []string{}
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}

func (ps *PostgresStore) Close() error {
	if ps.pool != nil {
		ps.pool.Close()
	}
	return nil
}

func scanPostgresChunks(rows pgx.Rows) ([]models.Chunk, error) {
	chunks := []models.Chunk{}
	for rows.Next() {
		var (
			c         models.Chunk
			embedding pgvector.Vector
		)
		if err := rows.Scan(&c.SnapshotID, &c.SourceID, &c.SourceTitle, &c.Index, &c.Text, &embedding, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		c.Vector = embedding.Slice()
		c.CreatedAt = c.CreatedAt.UTC()
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
