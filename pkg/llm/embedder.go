package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/driftrag/internal/types"
)

// EmbedderConfig represents the configuration for an embedding provider.
type EmbedderConfig struct {
	Provider string // "ollama" or "openai"
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// NewEmbedder returns the embedding provider selected by config.Provider.
func NewEmbedder(config EmbedderConfig) (types.EmbeddingProvider, error) {
	switch config.Provider {
	case "ollama", "":
		return NewOllamaEmbedder(config)
	case "openai":
		return NewOpenAIEmbedder(config)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}
}

type ollamaClient interface {
	CreateEmbedding(ctx context.Context, inputTexts []string) ([][]float32, error)
}

// OllamaEmbedder embeds text with a local Ollama server.
type OllamaEmbedder struct {
	config EmbedderConfig
	client ollamaClient
}

func NewOllamaEmbedder(config EmbedderConfig) (*OllamaEmbedder, error) {
	config.Provider = "ollama"
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest" // Default Ollama model
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &OllamaEmbedder{config: config, client: emb}, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	vectors, err := e.client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, &types.ProviderError{Provider: e.config.Provider, Err: err}
	}

	return checkVectors(e.config.Provider, len(texts), vectors)
}

// OpenAIEmbedder embeds text with the OpenAI embeddings endpoint, or any
// server that speaks the same protocol.
type OpenAIEmbedder struct {
	config EmbedderConfig
	client *openai.Client
}

func NewOpenAIEmbedder(config EmbedderConfig) (*OpenAIEmbedder, error) {
	config.Provider = "openai"
	if config.APIKey == "" {
		return nil, errors.New("openai embedder requires an API key")
	}
	if config.Model == "" {
		config.Model = string(openai.SmallEmbedding3)
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIEmbedder{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.config.Model),
		Input: texts,
	})
	if err != nil {
		return nil, &types.ProviderError{Provider: e.config.Provider, Err: err}
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, &types.ProviderError{
				Provider: e.config.Provider,
				Err:      fmt.Errorf("embedding index %d out of range", d.Index),
			}
		}
		vectors[d.Index] = d.Embedding
	}

	return checkVectors(e.config.Provider, len(texts), vectors)
}

// checkVectors enforces one non-empty vector per input, all of one dimension.
func checkVectors(provider string, want int, vectors [][]float32) ([][]float32, error) {
	if len(vectors) != want {
		return nil, &types.ProviderError{
			Provider: provider,
			Err:      fmt.Errorf("got %d embeddings for %d inputs", len(vectors), want),
		}
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, &types.ProviderError{Provider: provider, Err: fmt.Errorf("empty embedding at %d", i)}
		}
		if len(v) != dim {
			return nil, &types.ProviderError{
				Provider: provider,
				Err:      fmt.Errorf("embedding %d has %d dimensions, want %d: %w", i, len(v), dim, types.ErrDimensionMismatch),
			}
		}
	}

	return vectors, nil
}
