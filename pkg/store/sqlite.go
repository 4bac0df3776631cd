package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/xhad/driftrag/internal/models"
	"github.com/xhad/driftrag/internal/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id            TEXT PRIMARY KEY,
	collection    TEXT NOT NULL,
	url           TEXT NOT NULL,
	title         TEXT NOT NULL,
	original_text TEXT NOT NULL,
	changes       TEXT NOT NULL,
	previous_id   TEXT,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_source_idx ON snapshots (collection, url, created_at);

CREATE TABLE IF NOT EXISTS snapshot_chunks (
	snapshot_id  TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	collection   TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	source_title TEXT NOT NULL,
	chunk_index  INTEGER NOT NULL,
	content      TEXT NOT NULL,
	dim          INTEGER NOT NULL,
	embedding    BLOB NOT NULL,
	created_at   INTEGER NOT NULL,
	PRIMARY KEY (snapshot_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS snapshot_chunks_collection_idx ON snapshot_chunks (collection, created_at);
`

// SQLiteStore persists snapshots in a local SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates the database at path.
// If path is empty, defaults to ~/.driftrag/snapshots.db.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".driftrag", "snapshots.db")
	}

	var (
		db  *sql.DB
		err error
	)
	if path == ":memory:" {
		db, err = sql.Open("sqlite", path)
		if err == nil {
			// every connection would otherwise get its own empty database
			db.SetMaxOpenConns(1)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		db, err = sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	}
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) InsertSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	dim, err := prepareSnapshot(snapshot, 0)
	if err != nil {
		return err
	}

	changes, err := json.Marshal(snapshot.ChangesFromPrevious)
	if err != nil {
		return fmt.Errorf("encoding changes: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if dim > 0 {
		var have int
		err := tx.QueryRowContext(ctx,
			"SELECT dim FROM snapshot_chunks WHERE collection = ? LIMIT 1", snapshot.Collection).Scan(&have)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("checking vector dimension: %w", err)
		case have != dim:
			return fmt.Errorf("collection %s holds %d-dimension vectors, got %d: %w",
				snapshot.Collection, have, dim, types.ErrDimensionMismatch)
		}
	}

	var previousID sql.NullString
	if snapshot.PreviousID != "" {
		previousID = sql.NullString{String: snapshot.PreviousID, Valid: true}
	}

	createdAt := snapshot.CreatedAt.UnixNano()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, collection, url, title, original_text, changes, previous_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snapshot.ID, snapshot.Collection, snapshot.URL, snapshot.Title, snapshot.OriginalText,
		string(changes), previousID, createdAt,
	); err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	for _, c := range snapshot.Chunks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshot_chunks (snapshot_id, collection, source_id, source_title, chunk_index, content, dim, embedding, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.SnapshotID, snapshot.Collection, c.SourceID, c.SourceTitle, c.Index, c.Text,
			len(c.Vector), float32SliceToBytes(c.Vector), createdAt,
		); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindLatestSnapshot(ctx context.Context, collection, url string) (*models.Snapshot, error) {
	snapshot := models.Snapshot{Collection: collection, URL: url}

	var (
		changes    string
		previousID sql.NullString
		createdAt  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, original_text, changes, previous_id, created_at
		FROM snapshots
		WHERE collection = ? AND url = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, collection, url,
	).Scan(&snapshot.ID, &snapshot.Title, &snapshot.OriginalText, &changes, &previousID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(changes), &snapshot.ChangesFromPrevious); err != nil {
		return nil, fmt.Errorf("decoding changes: %w", err)
	}
	if snapshot.ChangesFromPrevious == nil {
		snapshot.ChangesFromPrevious = []models.ChangeRun{}
	}
	snapshot.PreviousID = previousID.String
	snapshot.CreatedAt = time.Unix(0, createdAt).UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_id, source_id, source_title, chunk_index, content, embedding, created_at
		FROM snapshot_chunks
		WHERE snapshot_id = ?
		ORDER BY chunk_index`, snapshot.ID)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot chunks: %w", err)
	}
	defer rows.Close()

	snapshot.Chunks, err = scanSQLiteChunks(rows)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *SQLiteStore) ScanAllChunks(ctx context.Context, collection string) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_id, source_id, source_title, chunk_index, content, embedding, created_at
		FROM snapshot_chunks
		WHERE collection = ?
		ORDER BY created_at, snapshot_id, chunk_index`, collection)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	return scanSQLiteChunks(rows)
}

func (s *SQLiteStore) TrackedURLs(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT url FROM snapshots WHERE collection = ? ORDER BY url", collection)
	if err != nil {
		return nil, fmt.Errorf("querying tracked urls: %w", err)
	}
	defer rows.Close()

	urls := []string{}
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scanning url: %w", err)
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSQLiteChunks(rows *sql.Rows) ([]models.Chunk, error) {
	chunks := []models.Chunk{}
	for rows.Next() {
		var (
			c         models.Chunk
			embedding []byte
			createdAt int64
		)
		if err := rows.Scan(&c.SnapshotID, &c.SourceID, &c.SourceTitle, &c.Index, &c.Text, &embedding, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Vector = bytesToFloat32Slice(embedding)
		c.CreatedAt = time.Unix(0, createdAt).UTC()
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
