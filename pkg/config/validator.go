package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.Provider != ProviderOllama && c.LLM.Provider != ProviderOpenAI {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q", c.LLM.Provider),
		})
	}

	if c.LLM.Provider == ProviderOpenAI && c.LLM.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.api_key",
			Message: "OpenAI API key is required",
		})
	}

	if c.LLM.BaseURL != "" && !validHTTPURL(c.LLM.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid base URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 32768 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 32768",
		})
	}

	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 1) {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 1",
		})
	}

	// Validate Embedding config
	if c.Embedding.Provider != ProviderOllama && c.Embedding.Provider != ProviderOpenAI {
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown provider %q", c.Embedding.Provider),
		})
	}

	if c.Embedding.Provider == ProviderOpenAI && c.Embedding.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "embedding.api_key",
			Message: "OpenAI API key is required",
		})
	}

	if c.Embedding.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "embedding.timeout",
			Message: "timeout must not be negative",
		})
	}

	// Validate Database config
	switch c.Database.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Database.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "database URL is required for postgres",
			})
		} else if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "database.driver",
			Message: fmt.Sprintf("unknown driver %q", c.Database.Driver),
		})
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	// Validate Scraper config
	if c.Scraper.Renderer != RendererChrome && c.Scraper.Renderer != RendererStatic {
		errors = append(errors, ValidationError{
			Field:   "scraper.renderer",
			Message: fmt.Sprintf("unknown renderer %q", c.Scraper.Renderer),
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Scraper.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.workers",
			Message: "workers must be positive",
		})
	}

	// Validate Processor config
	if c.Processor.ChunkWords < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_words",
			Message: "chunk_words must be positive",
		})
	}

	if c.Processor.MinChunkChars < 0 {
		errors = append(errors, ValidationError{
			Field:   "processor.min_chunk_chars",
			Message: "min_chunk_chars must not be negative",
		})
	}

	if c.Search.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "search.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Conversation.HistoryLength < 1 {
		errors = append(errors, ValidationError{
			Field:   "conversation.history_length",
			Message: "history_length must be positive",
		})
	}

	if c.RemoteIndex.PollInterval <= 0 || c.RemoteIndex.PollTimeout < c.RemoteIndex.PollInterval {
		errors = append(errors, ValidationError{
			Field:   "remote_index.poll_timeout",
			Message: "poll_interval must be positive and not exceed poll_timeout",
		})
	}

	return errors
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
