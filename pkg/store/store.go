package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/xhad/driftrag/internal/models"
	"github.com/xhad/driftrag/internal/types"
)

type Config struct {
	Driver      string // "memory", "sqlite" or "postgres"
	URL         string // postgres connection string
	Path        string // sqlite database file, or ":memory:"
	VectorDim   int    // postgres column dimension
	TablePrefix string // postgres table prefix
}

// New opens the chunk store selected by config.Driver.
func New(ctx context.Context, config Config) (types.ChunkStore, error) {
	switch config.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		return NewSQLiteStore(config.Path)
	case "postgres":
		return NewPostgresStore(ctx, PostgresConfig{
			ConnString:  config.URL,
			VectorDim:   config.VectorDim,
			TablePrefix: config.TablePrefix,
		})
	default:
		return nil, fmt.Errorf("unknown database driver %q", config.Driver)
	}
}

// prepareSnapshot checks a snapshot before it is written and fills in the
// per-chunk fields that are copied from the snapshot. It returns the vector
// dimension shared by all chunks, or 0 when there are none.
func prepareSnapshot(s *models.Snapshot, wantDim int) (int, error) {
	if s == nil {
		return 0, errors.New("snapshot is nil")
	}
	if s.ID == "" || s.Collection == "" || s.URL == "" {
		return 0, errors.New("snapshot requires id, collection and url")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.ChangesFromPrevious == nil {
		s.ChangesFromPrevious = []models.ChangeRun{}
	}
	s.Title = sanitizeUTF8(s.Title)
	s.OriginalText = sanitizeUTF8(s.OriginalText)

	dim := 0
	for i := range s.Chunks {
		c := &s.Chunks[i]
		c.SnapshotID = s.ID
		c.SourceID = s.URL
		c.SourceTitle = s.Title
		c.CreatedAt = s.CreatedAt
		c.Text = sanitizeUTF8(c.Text)

		if len(c.Vector) == 0 {
			return 0, fmt.Errorf("chunk %d has no vector", c.Index)
		}
		if dim == 0 {
			dim = len(c.Vector)
		}
		if len(c.Vector) != dim {
			return 0, fmt.Errorf("chunk %d has %d dimensions, want %d: %w", c.Index, len(c.Vector), dim, types.ErrDimensionMismatch)
		}
	}
	if wantDim > 0 && dim > 0 && dim != wantDim {
		return 0, fmt.Errorf("vectors have %d dimensions, store expects %d: %w", dim, wantDim, types.ErrDimensionMismatch)
	}

	return dim, nil
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}

// float32SliceToBytes encodes a vector as little-endian float32s.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
