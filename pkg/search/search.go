// Package search ranks stored chunks against a query by cosine similarity.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xhad/driftrag/internal/logger"
	"github.com/xhad/driftrag/internal/models"
	"github.com/xhad/driftrag/internal/types"
	"go.uber.org/zap"
)

type SearchConfig struct {
	Collection string
	TopK       int
	// LatestOnly restricts results to each source's most recent snapshot.
	LatestOnly bool
}

type Searcher struct {
	config   SearchConfig
	embedder types.EmbeddingProvider
	store    types.ChunkStore
	log      *zap.Logger
}

func NewWithConfig(embedder types.EmbeddingProvider, store types.ChunkStore, config SearchConfig, log *zap.Logger) *Searcher {
	if config.TopK <= 0 {
		config.TopK = 10
	}
	if config.Collection == "" {
		config.Collection = "default"
	}
	log = logger.Or(log)

	return &Searcher{
		config:   config,
		embedder: embedder,
		store:    store,
		log:      log,
	}
}

// Search ranks the configured collection. topK <= 0 uses the configured default.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]models.RankedChunk, error) {
	return s.SearchCollection(ctx, s.config.Collection, query, topK)
}

func (s *Searcher) SearchCollection(ctx context.Context, collection, query string, topK int) ([]models.RankedChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.ErrEmptyQuery
	}
	if topK <= 0 {
		topK = s.config.TopK
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, &types.ProviderError{Provider: "embedding", Err: fmt.Errorf("got %d vectors for one query", len(vectors))}
	}
	vector := vectors[0]

	if q, ok := s.store.(types.NearestChunkQuerier); ok && !s.config.LatestOnly && norm(vector) > 0 {
		return q.NearestChunks(ctx, collection, vector, topK)
	}

	chunks, err := s.store.ScanAllChunks(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	if s.config.LatestOnly {
		chunks = LatestOnly(chunks)
	}

	mismatched := 0
	for _, c := range chunks {
		if len(c.Vector) != len(vector) {
			mismatched++
		}
	}
	if mismatched > 0 {
		s.log.Warn("chunks with a different vector dimension score 0",
			zap.String("collection", collection),
			zap.Int("count", mismatched),
			zap.Int("query_dim", len(vector)))
	}

	return Rank(vector, chunks, topK), nil
}

// Rank scores every chunk against query and returns the best topK,
// highest first. Ties keep their input order.
func Rank(query []float32, chunks []models.Chunk, topK int) []models.RankedChunk {
	ranked := make([]models.RankedChunk, len(chunks))
	for i, c := range chunks {
		ranked[i] = models.RankedChunk{Chunk: c, Score: Cosine(query, c.Vector)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if topK >= 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// Cosine returns dot(a,b)/(|a||b|), or 0 when either vector is zero or the
// lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// LatestOnly keeps the chunks of each source's most recent snapshot.
func LatestOnly(chunks []models.Chunk) []models.Chunk {
	newest := make(map[string]models.Chunk)
	for _, c := range chunks {
		cur, ok := newest[c.SourceID]
		if !ok || !c.CreatedAt.Before(cur.CreatedAt) {
			newest[c.SourceID] = c
		}
	}

	out := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if newest[c.SourceID].SnapshotID == c.SnapshotID {
			out = append(out, c)
		}
	}
	return out
}
