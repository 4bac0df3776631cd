// Package ingest captures web pages as versioned snapshots, storing a new
// snapshot only when the visible text has changed.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/driftrag/internal/logger"
	"github.com/xhad/driftrag/internal/models"
	"github.com/xhad/driftrag/internal/types"
	"github.com/xhad/driftrag/pkg/differ"
	"github.com/xhad/driftrag/pkg/processor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type IngesterConfig struct {
	Collection string
	Workers    int
	// Timeout bounds one URL's whole capture, rendering through storage.
	Timeout time.Duration
	// OnResult is called as each URL of a batch finishes, possibly concurrently.
	OnResult func(BatchResult)
}

// Outcome describes one capture. Snapshot is nil when nothing was stored.
type Outcome struct {
	Snapshot     *models.Snapshot
	FirstCapture bool
	Stored       bool
	Changes      []models.ChangeRun
}

type BatchResult struct {
	URL     string
	Outcome Outcome
	Err     error
}

type Ingester struct {
	config    IngesterConfig
	renderer  types.PageRenderer
	processor processor.Processor
	embedder  types.EmbeddingProvider
	store     types.ChunkStore
	log       *zap.Logger
	locks     keyedMutex
	now       func() time.Time
}

func NewWithConfig(
	config IngesterConfig,
	renderer types.PageRenderer,
	proc processor.Processor,
	embedder types.EmbeddingProvider,
	store types.ChunkStore,
	log *zap.Logger,
) *Ingester {
	if config.Collection == "" {
		config.Collection = "default"
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}
	log = logger.Or(log)

	return &Ingester{
		config:    config,
		renderer:  renderer,
		processor: proc,
		embedder:  embedder,
		store:     store,
		log:       log.With(zap.String("collection", config.Collection)),
		now:       time.Now,
	}
}

// Ingest captures url and returns the changes against its previous snapshot.
// The result is empty on a first capture and when nothing changed.
func (in *Ingester) Ingest(ctx context.Context, url string) ([]models.ChangeRun, error) {
	out, err := in.Capture(ctx, url)
	if err != nil {
		return nil, err
	}
	return out.Changes, nil
}

// Capture renders, diffs and, when the text is new or changed, embeds and
// stores url. Captures of the same URL are serialised.
func (in *Ingester) Capture(ctx context.Context, url string) (Outcome, error) {
	unlock := in.locks.Lock(url)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, in.config.Timeout)
	defer cancel()

	log := in.log.With(zap.String("url", url))

	page, err := in.renderer.Render(ctx, url)
	if err != nil {
		return Outcome{}, err
	}
	processed := in.processor.Process(page)

	previous, err := in.store.FindLatestSnapshot(ctx, in.config.Collection, url)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return Outcome{}, fmt.Errorf("failed to load latest snapshot: %w", err)
	}

	out := Outcome{FirstCapture: previous == nil, Changes: []models.ChangeRun{}}
	if previous != nil {
		out.Changes = differ.Diff(previous.OriginalText, processed.Text)
		if len(out.Changes) == 0 {
			log.Info("no significant change", zap.String("snapshot_id", previous.ID))
			return out, nil
		}
	}

	vectors, err := in.embedder.Embed(ctx, processed.Chunks)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(processed.Chunks) {
		return Outcome{}, &types.ProviderError{
			Provider: "embedding",
			Err:      fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(processed.Chunks)),
		}
	}

	snapshot := &models.Snapshot{
		ID:                  uuid.NewString(),
		Collection:          in.config.Collection,
		URL:                 url,
		Title:               processed.Title,
		OriginalText:        processed.Text,
		ChangesFromPrevious: out.Changes,
		CreatedAt:           in.timestamp(previous),
	}
	if previous != nil {
		snapshot.PreviousID = previous.ID
	}
	for i, text := range processed.Chunks {
		snapshot.Chunks = append(snapshot.Chunks, models.Chunk{
			Index:  i,
			Text:   text,
			Vector: vectors[i],
		})
	}

	if err := in.store.InsertSnapshot(ctx, snapshot); err != nil {
		return Outcome{}, fmt.Errorf("failed to store snapshot: %w", err)
	}

	log.Info("stored snapshot",
		zap.String("snapshot_id", snapshot.ID),
		zap.String("previous_id", snapshot.PreviousID),
		zap.Bool("first_capture", out.FirstCapture),
		zap.Int("chunks", len(snapshot.Chunks)),
		zap.Int("changes", len(out.Changes)))

	out.Snapshot = snapshot
	out.Stored = true
	return out, nil
}

// timestamp returns a creation time at microsecond precision, the finest
// every store keeps, that sorts after the previous snapshot.
func (in *Ingester) timestamp(previous *models.Snapshot) time.Time {
	ts := in.now().UTC().Truncate(time.Microsecond)
	if previous != nil && !ts.After(previous.CreatedAt) {
		ts = previous.CreatedAt.Add(time.Microsecond)
	}
	return ts
}

// IngestAll captures every URL with at most Workers in flight and waits for
// all of them. A failed URL is logged and reported in its result only.
func (in *Ingester) IngestAll(ctx context.Context, urls []string) []BatchResult {
	results := make([]BatchResult, len(urls))

	var g errgroup.Group
	g.SetLimit(in.config.Workers)

	for i, url := range urls {
		g.Go(func() error {
			out, err := in.Capture(ctx, url)
			if err != nil {
				in.log.Error("ingestion failed", zap.String("url", url), zap.Error(err))
			}

			results[i] = BatchResult{URL: url, Outcome: out, Err: err}
			if in.config.OnResult != nil {
				in.config.OnResult(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// RecheckTracked re-captures every URL the collection already tracks.
func (in *Ingester) RecheckTracked(ctx context.Context) ([]BatchResult, error) {
	urls, err := in.store.TrackedURLs(ctx, in.config.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked urls: %w", err)
	}

	in.log.Info("rechecking tracked urls", zap.Int("count", len(urls)))
	return in.IngestAll(ctx, urls), nil
}
