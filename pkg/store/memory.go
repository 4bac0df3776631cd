package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xhad/driftrag/internal/models"
	"github.com/xhad/driftrag/internal/types"
)

// MemoryStore keeps snapshots in process memory. Contents are lost on exit.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]*models.Snapshot // by collection, in insertion order
	ids       map[string]bool
	dims      map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string][]*models.Snapshot),
		ids:       make(map[string]bool),
		dims:      make(map[string]int),
	}
}

func (m *MemoryStore) InsertSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	dim, err := prepareSnapshot(snapshot, 0)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ids[snapshot.ID] {
		return fmt.Errorf("snapshot %s already exists", snapshot.ID)
	}
	if have, ok := m.dims[snapshot.Collection]; ok && dim > 0 && have != dim {
		return fmt.Errorf("collection %s holds %d-dimension vectors, got %d: %w",
			snapshot.Collection, have, dim, types.ErrDimensionMismatch)
	}

	if dim > 0 {
		m.dims[snapshot.Collection] = dim
	}
	m.ids[snapshot.ID] = true
	m.snapshots[snapshot.Collection] = append(m.snapshots[snapshot.Collection], cloneSnapshot(snapshot))
	return nil
}

func (m *MemoryStore) FindLatestSnapshot(ctx context.Context, collection, url string) (*models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *models.Snapshot
	for _, s := range m.snapshots[collection] {
		if s.URL != url {
			continue
		}
		// later inserts win ties
		if latest == nil || !s.CreatedAt.Before(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, types.ErrNotFound
	}
	return cloneSnapshot(latest), nil
}

func (m *MemoryStore) ScanAllChunks(ctx context.Context, collection string) ([]models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chunks := []models.Chunk{}
	for _, s := range m.snapshots[collection] {
		chunks = append(chunks, cloneChunks(s.Chunks)...)
	}
	return chunks, nil
}

func (m *MemoryStore) TrackedURLs(ctx context.Context, collection string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	urls := []string{}
	for _, s := range m.snapshots[collection] {
		if !seen[s.URL] {
			seen[s.URL] = true
			urls = append(urls, s.URL)
		}
	}
	sort.Strings(urls)
	return urls, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func cloneSnapshot(s *models.Snapshot) *models.Snapshot {
	c := *s
	c.Chunks = cloneChunks(s.Chunks)
	c.ChangesFromPrevious = append([]models.ChangeRun{}, s.ChangesFromPrevious...)
	return &c
}

func cloneChunks(chunks []models.Chunk) []models.Chunk {
	out := make([]models.Chunk, len(chunks))
	for i, c := range chunks {
		c.Vector = append([]float32(nil), c.Vector...)
		out[i] = c
	}
	return out
}
