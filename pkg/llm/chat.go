package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/driftrag/internal/models"
	"github.com/xhad/driftrag/internal/types"
)

const DefaultSystemTemplate = `You are an analyst answering questions about a set of tracked web pages and documents.
Use the provided context first. If the context does not cover the question, say so in the explanation.
Reply with only a valid JSON object of this shape:
{"summary": "...", "explanation": "...", "company_name": "...", "positive": "...", "negative": "...",
 "citations": [{"source": "...", "excerpt": "..."}],
 "insights": [{"type": "amount|range|text|percent", "name": "...", "value": "..."}],
 "fixitems": [{"type": "alert|rate|ratio|time", "name": "...", "value": "..."}]}
- summary: one or two sentences answering the question.
- explanation: the reasoning behind the answer and which sources were used.
- positive and negative: leave blank when nothing stands out.
- insights: up to 4 short facts directly related to the question.
- fixitems: up to 10 concrete next actions when the question asks what to change.
Do not write anything outside the JSON object.`

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider        string // "ollama" or "openai"
	Model           string
	Temperature     *float64 // nil means 0.2
	MaxTokens       int
	SystemTemplate  string
	ContextTemplate string
	BaseURL         string
	APIKey          string
}

// ChatEngine is an engine that uses an LLM to answer questions over retrieved context.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine backed by the configured provider.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Provider == "" {
		config.Provider = "ollama"
	}

	var (
		model llms.Model
		err   error
	)
	switch config.Provider {
	case "ollama":
		if config.Model == "" {
			config.Model = "mistral" // Default Ollama model
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		model, err = ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	case "openai":
		if config.Model == "" {
			config.Model = "gpt-4.1"
		}
		opts := []lcopenai.Option{lcopenai.WithModel(config.Model), lcopenai.WithToken(config.APIKey)}
		if config.BaseURL != "" {
			opts = append(opts, lcopenai.WithBaseURL(config.BaseURL))
		}
		model, err = lcopenai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(model, config)
}

// NewWithModel wraps an already constructed model.
func NewWithModel(model llms.Model, config ChatConfig) (*ChatEngine, error) {
	if model == nil {
		return nil, errors.New("model is required")
	}
	temperature := 0.2
	if config.Temperature != nil {
		temperature = *config.Temperature
	}
	config.Temperature = &temperature
	if temperature < 0 || temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = DefaultSystemTemplate
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = "Relevant documentation:\n%s"
	}

	return &ChatEngine{config: config, llm: model}, nil
}

// Answer sends the system prompt, the retrieved context and the conversation
// history to the model and returns its raw reply text.
func (ce *ChatEngine) Answer(ctx context.Context, req types.AnswerRequest) (string, error) {
	if len(req.History) == 0 {
		return "", errors.New("history must contain the question")
	}

	contextBlock := req.ContextBlock
	if strings.TrimSpace(contextBlock) == "" {
		contextBlock = "(no matching documents)"
	}

	content := make([]llms.MessageContent, 0, len(req.History)+2)
	content = append(content,
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(llms.ChatMessageTypeSystem, fmt.Sprintf(ce.config.ContextTemplate, contextBlock)),
	)
	for _, turn := range req.History {
		role := llms.ChatMessageTypeHuman
		if turn.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, turn.Content))
	}

	resp, err := ce.llm.GenerateContent(ctx, content,
		llms.WithTemperature(*ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		return "", &types.ProviderError{Provider: ce.config.Provider, Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", &types.ProviderError{Provider: ce.config.Provider, Err: errors.New("no response from LLM")}
	}

	return resp.Choices[0].Content, nil
}
