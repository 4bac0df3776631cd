package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	RendererChrome = "chrome"
	RendererStatic = "static"
)

type Config struct {
	LLM          LLMConfig          `yaml:"llm"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Database     DatabaseConfig     `yaml:"database"`
	Scraper      ScraperConfig      `yaml:"scraper"`
	Processor    ProcessorConfig    `yaml:"processor"`
	Search       SearchConfig       `yaml:"search"`
	Conversation ConversationConfig `yaml:"conversation"`
	RemoteIndex  RemoteIndexConfig  `yaml:"remote_index"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"` // nil means 0.2; 0 is kept
}

type EmbeddingConfig struct {
	Provider string        `yaml:"provider"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	URL        string `yaml:"url"`
	Path       string `yaml:"path"`
	VectorDim  int    `yaml:"vector_dim"`
	Collection string `yaml:"collection"`
}

type ScraperConfig struct {
	Renderer    string        `yaml:"renderer"`
	RateLimit   float64       `yaml:"rate_limit"`
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
	Workers     int           `yaml:"workers"`
	RemoveNoise bool          `yaml:"remove_noise"`
}

type ProcessorConfig struct {
	ChunkWords    int `yaml:"chunk_words"`
	MinChunkChars int `yaml:"min_chunk_chars"`
}

type SearchConfig struct {
	TopK       int  `yaml:"top_k"`
	LatestOnly bool `yaml:"latest_only"`
}

type ConversationConfig struct {
	HistoryLength int    `yaml:"history_length"`
	SystemPrompt  string `yaml:"system_prompt"`
}

type RemoteIndexConfig struct {
	IndexID      string        `yaml:"index_id"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func LoadConfig(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/driftrag/config.yaml"),
			"/etc/driftrag/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = ProviderOllama
	}
	if config.LLM.Model == "" {
		if config.LLM.Provider == ProviderOpenAI {
			config.LLM.Model = "gpt-4.1"
		} else {
			config.LLM.Model = "mistral"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == nil {
		temperature := 0.2
		config.LLM.Temperature = &temperature
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == ProviderOllama {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = config.LLM.Provider
	}
	if config.Embedding.Model == "" {
		if config.Embedding.Provider == ProviderOpenAI {
			config.Embedding.Model = "text-embedding-3-small"
		} else {
			config.Embedding.Model = "nomic-embed-text:latest"
		}
	}
	if config.Embedding.BaseURL == "" && config.Embedding.Provider == ProviderOllama {
		config.Embedding.BaseURL = config.LLM.BaseURL
		if config.Embedding.BaseURL == "" {
			config.Embedding.BaseURL = "http://localhost:11434"
		}
	}
	if config.Embedding.APIKey == "" {
		config.Embedding.APIKey = config.LLM.APIKey
	}
	if config.Embedding.Timeout == 0 {
		config.Embedding.Timeout = 30 * time.Second
	}

	if config.Database.Driver == "" {
		switch {
		case config.Database.URL != "":
			config.Database.Driver = DriverPostgres
		default:
			config.Database.Driver = DriverSQLite
		}
	}
	if config.Database.Driver == DriverSQLite && config.Database.Path == "" {
		config.Database.Path = filepath.Join(os.Getenv("HOME"), ".driftrag", "snapshots.db")
	}
	if config.Database.VectorDim == 0 {
		if config.Embedding.Provider == ProviderOpenAI {
			config.Database.VectorDim = 1536
		} else {
			config.Database.VectorDim = 768
		}
	}
	if config.Database.Collection == "" {
		config.Database.Collection = "default"
	}

	if config.Scraper.Renderer == "" {
		config.Scraper.Renderer = RendererChrome
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 30 * time.Second
	}
	if config.Scraper.UserAgent == "" {
		config.Scraper.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
	}
	if config.Scraper.Workers == 0 {
		config.Scraper.Workers = 4
	}

	if config.Processor.ChunkWords == 0 {
		config.Processor.ChunkWords = 200
	}
	if config.Processor.MinChunkChars == 0 {
		config.Processor.MinChunkChars = 20
	}

	if config.Search.TopK == 0 {
		config.Search.TopK = 10
	}

	if config.Conversation.HistoryLength == 0 {
		config.Conversation.HistoryLength = 10
	}

	if config.RemoteIndex.PollInterval == 0 {
		config.RemoteIndex.PollInterval = time.Second
	}
	if config.RemoteIndex.PollTimeout == 0 {
		config.RemoteIndex.PollTimeout = 5 * time.Minute
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if llmProvider(config) == ProviderOllama {
			config.LLM.BaseURL = baseURL
		}
		if embeddingProvider(config) == ProviderOllama {
			config.Embedding.BaseURL = baseURL
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.APIKey = key
		config.Embedding.APIKey = key
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		if llmProvider(config) == ProviderOpenAI {
			config.LLM.BaseURL = baseURL
		}
		if embeddingProvider(config) == ProviderOpenAI {
			config.Embedding.BaseURL = baseURL
		}
	}
	if indexID := os.Getenv("DRIFTRAG_INDEX_ID"); indexID != "" {
		config.RemoteIndex.IndexID = indexID
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

func llmProvider(config *Config) string {
	if config.LLM.Provider == "" {
		return ProviderOllama
	}
	return config.LLM.Provider
}

// embeddingProvider follows the LLM provider unless set explicitly.
func embeddingProvider(config *Config) string {
	if config.Embedding.Provider == "" {
		return llmProvider(config)
	}
	return config.Embedding.Provider
}
