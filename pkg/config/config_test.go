package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OLLAMA_BASE_URL", "DATABASE_URL", "OPENAI_API_KEY", "OPENAI_BASE_URL", "DRIFTRAG_INDEX_ID", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)

	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  provider: "openai"
  api_key: "sk-test"
  max_tokens: 1000
  temperature: 0.5

embedding:
  timeout: 10s

database:
  url: "postgres://localhost:5432/test"
  vector_dim: 1536
  collection: "acme"

scraper:
  renderer: "static"
  rate_limit: 1.5
  workers: 8

processor:
  chunk_words: 150

conversation:
  history_length: 4

remote_index:
  index_id: "vs_123"
  poll_interval: 500ms
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, config.LLM.Provider)
	assert.Equal(t, "gpt-4.1", config.LLM.Model)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	require.NotNil(t, config.LLM.Temperature)
	assert.Equal(t, 0.5, *config.LLM.Temperature)

	assert.Equal(t, ProviderOpenAI, config.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", config.Embedding.Model)
	assert.Equal(t, "sk-test", config.Embedding.APIKey)
	assert.Equal(t, 10*time.Second, config.Embedding.Timeout)

	assert.Equal(t, DriverPostgres, config.Database.Driver)
	assert.Equal(t, "acme", config.Database.Collection)

	assert.Equal(t, RendererStatic, config.Scraper.Renderer)
	assert.Equal(t, 8, config.Scraper.Workers)
	assert.Equal(t, 150, config.Processor.ChunkWords)
	assert.Equal(t, 20, config.Processor.MinChunkChars)
	assert.Equal(t, 10, config.Search.TopK)
	assert.Equal(t, 4, config.Conversation.HistoryLength)
	assert.Equal(t, "vs_123", config.RemoteIndex.IndexID)
	assert.Equal(t, 500*time.Millisecond, config.RemoteIndex.PollInterval)
	assert.Equal(t, 5*time.Minute, config.RemoteIndex.PollTimeout)

	assert.Empty(t, config.Validate())
}

func TestDefaultConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	config, err := getDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, ProviderOllama, config.LLM.Provider)
	assert.Equal(t, "mistral", config.LLM.Model)
	require.NotNil(t, config.LLM.Temperature)
	assert.Equal(t, 0.2, *config.LLM.Temperature)
	assert.Equal(t, "http://localhost:11434", config.Embedding.BaseURL)
	assert.Equal(t, "nomic-embed-text:latest", config.Embedding.Model)
	assert.Equal(t, DriverSQLite, config.Database.Driver)
	assert.Equal(t, 768, config.Database.VectorDim)
	assert.Equal(t, RendererChrome, config.Scraper.Renderer)
	assert.Equal(t, 200, config.Processor.ChunkWords)
	assert.Equal(t, 10, config.Conversation.HistoryLength)
	assert.Empty(t, config.Validate())
}

func TestZeroTemperatureIsKept(t *testing.T) {
	clearEnv(t)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm:\n  temperature: 0\n"), 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, config.LLM.Temperature)
	assert.Equal(t, 0.0, *config.LLM.Temperature)
	assert.Empty(t, config.Validate())
}

func TestConfigValidation(t *testing.T) {
	config := Config{}
	applyDefaults(&config)

	config.LLM.Provider = ProviderOpenAI
	config.LLM.APIKey = ""
	config.LLM.BaseURL = "not a url"
	temperature := 3.0
	config.LLM.Temperature = &temperature
	config.Database.Driver = "mongo"
	config.Scraper.Workers = -1
	config.Processor.ChunkWords = 0

	errors := config.Validate()
	require.Len(t, errors, 6)

	fields := make([]string, 0, len(errors))
	for _, e := range errors {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{
		"llm.api_key",
		"llm.base_url",
		"llm.temperature",
		"database.driver",
		"scraper.workers",
		"processor.chunk_words",
	}, fields)
	assert.Contains(t, errors[0].Error(), "llm.api_key: OpenAI API key is required")
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("DRIFTRAG_INDEX_ID", "vs_env")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "http://env-ollama:11434", config.LLM.BaseURL)
	assert.Equal(t, "http://env-ollama:11434", config.Embedding.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Database.URL)
	assert.Equal(t, "vs_env", config.RemoteIndex.IndexID)
}

func TestEnvironmentOverridesRespectProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("OPENAI_BASE_URL", "https://proxy.example.com/v1")

	config := &Config{}
	config.LLM.Provider = ProviderOpenAI
	config.Embedding.Provider = ProviderOllama
	mergeWithEnv(config)

	assert.Equal(t, "https://proxy.example.com/v1", config.LLM.BaseURL)
	assert.Equal(t, "http://env-ollama:11434", config.Embedding.BaseURL)
}
