package remoteindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xhad/driftrag/internal/logger"
	"go.uber.org/zap"
)

// MaxUploadBytes is the largest file UploadFile accepts.
const MaxUploadBytes = 20 << 20

type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	PollTimeout  time.Duration
	PageSize     int
}

// OpenAIIndex manages OpenAI vector stores. Member ids are file ids.
type OpenAIIndex struct {
	config OpenAIConfig
	client *openai.Client
	log    *zap.Logger
}

func NewOpenAIIndex(config OpenAIConfig, log *zap.Logger) (*OpenAIIndex, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai index requires an API key")
	}
	if config.PollInterval == 0 {
		config.PollInterval = time.Second
	}
	if config.PollTimeout == 0 {
		config.PollTimeout = 5 * time.Minute
	}
	if config.PageSize <= 0 || config.PageSize > 100 {
		config.PageSize = 100
	}
	log = logger.Or(log)

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIIndex{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
		log:    log,
	}, nil
}

func (o *OpenAIIndex) ListMembers(ctx context.Context, indexID string) ([]string, error) {
	ids := []string{}
	limit := o.config.PageSize
	var after *string

	for {
		page, err := o.client.ListVectorStoreFiles(ctx, indexID, openai.Pagination{Limit: &limit, After: after})
		if err != nil {
			return nil, fmt.Errorf("failed to list vector store files: %w", err)
		}
		for _, f := range page.VectorStoreFiles {
			ids = append(ids, f.ID)
		}
		if !page.HasMore || page.LastID == nil || len(page.VectorStoreFiles) == 0 {
			return ids, nil
		}
		after = page.LastID
	}
}

// AddMember attaches a file and blocks until the store has finished
// processing it, it failed, or PollTimeout elapsed.
func (o *OpenAIIndex) AddMember(ctx context.Context, indexID, docID string) error {
	f, err := o.client.CreateVectorStoreFile(ctx, indexID, openai.VectorStoreFileRequest{FileID: docID})
	if err != nil {
		return fmt.Errorf("failed to attach file %s: %w", docID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.config.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		switch f.Status {
		case "completed":
			o.log.Debug("file ready", zap.String("index_id", indexID), zap.String("file_id", docID))
			return nil
		case "failed", "cancelled":
			return fmt.Errorf("file %s ended with status %s", docID, f.Status)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for file %s: %w", docID, ctx.Err())
		case <-ticker.C:
		}

		f, err = o.client.RetrieveVectorStoreFile(ctx, indexID, docID)
		if err != nil {
			return fmt.Errorf("failed to check file %s: %w", docID, err)
		}
	}
}

func (o *OpenAIIndex) RemoveMember(ctx context.Context, indexID, docID string) error {
	if err := o.client.DeleteVectorStoreFile(ctx, indexID, docID); err != nil {
		return fmt.Errorf("failed to detach file %s: %w", docID, err)
	}
	return nil
}

// CreateIndex creates an empty vector store and returns its id.
func (o *OpenAIIndex) CreateIndex(ctx context.Context, name string) (string, error) {
	vs, err := o.client.CreateVectorStore(ctx, openai.VectorStoreRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("failed to create vector store: %w", err)
	}
	o.log.Info("created vector store", zap.String("name", name), zap.String("index_id", vs.ID))
	return vs.ID, nil
}

// UploadFile uploads a local document and returns the file id to use as a
// member id.
func (o *OpenAIIndex) UploadFile(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxUploadBytes {
		return "", fmt.Errorf("%s is %d bytes, the limit is %d", path, info.Size(), MaxUploadBytes)
	}

	f, err := o.client.CreateFile(ctx, openai.FileRequest{
		FileName: filepath.Base(path),
		FilePath: path,
		Purpose:  string(openai.PurposeAssistants),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", path, err)
	}

	o.log.Info("uploaded file", zap.String("path", path), zap.String("file_id", f.ID))
	return f.ID, nil
}
