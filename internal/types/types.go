package types

import (
	"context"

	"github.com/xhad/driftrag/internal/models"
)

// Core interfaces

// EmbeddingProvider returns one vector per input text, in input order.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// PageRenderer executes a page and returns its title and visible text.
type PageRenderer interface {
	Render(ctx context.Context, url string) (models.Page, error)
}

type ChunkStore interface {
	InsertSnapshot(ctx context.Context, snapshot *models.Snapshot) error
	// FindLatestSnapshot returns ErrNotFound when the URL was never captured.
	FindLatestSnapshot(ctx context.Context, collection, url string) (*models.Snapshot, error)
	ScanAllChunks(ctx context.Context, collection string) ([]models.Chunk, error)
	TrackedURLs(ctx context.Context, collection string) ([]string, error)
	Close() error
}

// RemoteIndexService manages membership of an externally hosted index.
// AddMember returns only once the member is ready or has failed.
type RemoteIndexService interface {
	ListMembers(ctx context.Context, indexID string) ([]string, error)
	AddMember(ctx context.Context, indexID, docID string) error
	RemoveMember(ctx context.Context, indexID, docID string) error
}

// IndexCreator is implemented by remote index services that can create new indices.
type IndexCreator interface {
	CreateIndex(ctx context.Context, name string) (string, error)
}

type AnswerRequest struct {
	History      []models.ConversationTurn
	ContextBlock string
}

// Answerer is the generative step; it returns the raw reply text.
type Answerer interface {
	Answer(ctx context.Context, req AnswerRequest) (string, error)
}

// NearestChunkQuerier is implemented by stores that can rank a collection's
// chunks against a query vector themselves.
type NearestChunkQuerier interface {
	NearestChunks(ctx context.Context, collection string, vector []float32, limit int) ([]models.RankedChunk, error)
}
