package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
)

// ChatCompleter is the slice of the OpenAI client the model uses
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIModel calls an OpenAI compatible chat completions endpoint
// (OpenAI, Azure AI inference, GitHub Models) with an image_url part
type OpenAIModel struct {
	client ChatCompleter
	model  string
}

// NewOpenAIModel creates a model client. baseURL may be empty for api.openai.com.
func NewOpenAIModel(apiKey, baseURL, model string) (*OpenAIModel, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY not configured")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIModel{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// Analyze sends one request and returns the first choice's content
func (o *OpenAIModel) Analyze(ctx context.Context, req Request) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: req.System,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: req.User,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    req.Image.DataURL(),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		Temperature: Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: openai: %v", types.ErrUpstreamUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
