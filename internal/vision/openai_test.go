package vision

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCompleter struct {
	response openai.ChatCompletionResponse
	err      error
	request  openai.ChatCompletionRequest
}

func (m *mockCompleter) CreateChatCompletion(_ context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.request = request
	return m.response, m.err
}

func completion(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
		},
	}
}

func TestNewOpenAIModel(t *testing.T) {
	_, err := NewOpenAIModel("", "", "")
	assert.Error(t, err)

	model, err := NewOpenAIModel("sk-test", "https://models.inference.ai.azure.com/", "")
	require.NoError(t, err)
	assert.Equal(t, openai.GPT4o, model.model)
}

func TestOpenAIModel_Analyze(t *testing.T) {
	mock := &mockCompleter{response: completion(`{"materials":["glass"]}`)}
	model := &OpenAIModel{client: mock, model: "gpt-4o"}

	req := Request{System: "system prompt", User: "user prompt", Image: Image{MediaType: "image/jpeg", Data: jpegBytes}}
	text, err := model.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"materials":["glass"]}`, text)

	assert.Equal(t, "gpt-4o", mock.request.Model)
	assert.InDelta(t, Temperature, mock.request.Temperature, 0.0001)
	require.Len(t, mock.request.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, mock.request.Messages[0].Role)
	assert.Equal(t, "system prompt", mock.request.Messages[0].Content)

	parts := mock.request.Messages[1].MultiContent
	require.Len(t, parts, 2)
	assert.Equal(t, "user prompt", parts[0].Text)
	require.NotNil(t, parts[1].ImageURL)
	assert.Equal(t, req.Image.DataURL(), parts[1].ImageURL.URL)
	assert.Equal(t, openai.ImageURLDetailHigh, parts[1].ImageURL.Detail)
}

func TestOpenAIModel_AnalyzeNoChoices(t *testing.T) {
	model := &OpenAIModel{client: &mockCompleter{}, model: "gpt-4o"}

	text, err := model.Analyze(context.Background(), Request{})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestOpenAIModel_AnalyzeFailure(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: 503, Message: "service unavailable"}
	model := &OpenAIModel{client: &mockCompleter{err: apiErr}, model: "gpt-4o"}

	_, err := model.Analyze(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUpstreamUnavailable))
}
