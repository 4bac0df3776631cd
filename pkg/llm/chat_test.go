package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/driftrag/internal/models"
	"github.com/xhad/driftrag/internal/types"
	"github.com/xhad/driftrag/pkg/llm"
)

type fakeModel struct {
	reply    string
	err      error
	messages []llms.MessageContent
	options  llms.CallOptions
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, opt := range options {
		opt(&f.options)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func text(t *testing.T, m llms.MessageContent) string {
	t.Helper()
	require.Len(t, m.Parts, 1)
	part, ok := m.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return part.Text
}

func temperature(v float64) *float64 { return &v }

func TestNewWithConfig(t *testing.T) {
	engine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       "testmodel",
		Temperature: temperature(0.5),
		MaxTokens:   1000,
		BaseURL:     "http://localhost:1234",
	})
	assert.NoError(t, err)
	assert.NotNil(t, engine)

	engine, err = llm.NewWithConfig(llm.ChatConfig{Provider: "openai", APIKey: "sk-test"})
	assert.NoError(t, err)
	assert.NotNil(t, engine)

	_, err = llm.NewWithConfig(llm.ChatConfig{Provider: "parrot"})
	assert.Error(t, err)
}

func TestNewWithModelValidation(t *testing.T) {
	_, err := llm.NewWithModel(&fakeModel{}, llm.ChatConfig{Temperature: temperature(1.5)})
	assert.Error(t, err)

	_, err = llm.NewWithModel(&fakeModel{}, llm.ChatConfig{MaxTokens: -1})
	assert.Error(t, err)

	_, err = llm.NewWithModel(nil, llm.ChatConfig{})
	assert.Error(t, err)
}

func TestAnswer(t *testing.T) {
	model := &fakeModel{reply: `{"summary":"prices went up"}`}
	engine, err := llm.NewWithModel(model, llm.ChatConfig{Provider: "ollama", Temperature: temperature(0.3), MaxTokens: 500})
	require.NoError(t, err)

	reply, err := engine.Answer(context.Background(), types.AnswerRequest{
		History: []models.ConversationTurn{
			{Role: models.RoleUser, Content: "what changed?"},
			{Role: models.RoleAssistant, Content: "the pricing table"},
			{Role: models.RoleUser, Content: "by how much?"},
		},
		ContextBlock: "[1] Pricing (https://example.com/pricing)\nPro plan 20 dollars",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"prices went up"}`, reply)

	require.Len(t, model.messages, 5)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llm.DefaultSystemTemplate, text(t, model.messages[0]))
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[1].Role)
	assert.Contains(t, text(t, model.messages[1]), "Pro plan 20 dollars")
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[2].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.messages[3].Role)
	assert.Equal(t, "by how much?", text(t, model.messages[4]))

	assert.Equal(t, 0.3, model.options.Temperature)
	assert.Equal(t, 500, model.options.MaxTokens)
}

func TestAnswerEmptyContext(t *testing.T) {
	model := &fakeModel{reply: "{}"}
	engine, err := llm.NewWithModel(model, llm.ChatConfig{})
	require.NoError(t, err)

	_, err = engine.Answer(context.Background(), types.AnswerRequest{
		History: []models.ConversationTurn{{Role: models.RoleUser, Content: "anything?"}},
	})
	require.NoError(t, err)
	assert.Contains(t, text(t, model.messages[1]), "no matching documents")
}

func TestAnswerTemperature(t *testing.T) {
	history := []models.ConversationTurn{{Role: models.RoleUser, Content: "hi"}}

	model := &fakeModel{reply: "{}", options: llms.CallOptions{Temperature: 0.9}}
	engine, err := llm.NewWithModel(model, llm.ChatConfig{Temperature: temperature(0)})
	require.NoError(t, err)
	_, err = engine.Answer(context.Background(), types.AnswerRequest{History: history})
	require.NoError(t, err)
	assert.Equal(t, 0.0, model.options.Temperature)

	model = &fakeModel{reply: "{}"}
	engine, err = llm.NewWithModel(model, llm.ChatConfig{})
	require.NoError(t, err)
	_, err = engine.Answer(context.Background(), types.AnswerRequest{History: history})
	require.NoError(t, err)
	assert.Equal(t, 0.2, model.options.Temperature)
}

func TestAnswerErrors(t *testing.T) {
	engine, err := llm.NewWithModel(&fakeModel{err: errors.New("model not loaded")}, llm.ChatConfig{Provider: "ollama"})
	require.NoError(t, err)

	history := []models.ConversationTurn{{Role: models.RoleUser, Content: "hi"}}
	_, err = engine.Answer(context.Background(), types.AnswerRequest{History: history})

	var providerErr *types.ProviderError
	require.True(t, errors.As(err, &providerErr))
	assert.Equal(t, "ollama", providerErr.Provider)

	_, err = engine.Answer(context.Background(), types.AnswerRequest{})
	assert.Error(t, err)
}
