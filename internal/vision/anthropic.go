package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
)

const anthropicMaxTokens = 2048

// AnthropicMessager is the slice of the Anthropic client the model uses
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicClientCreator builds a messager for an API key
type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// AnthropicModel calls the Anthropic Messages API with an image content block
type AnthropicModel struct {
	messages AnthropicMessager
	model    anthropic.Model
}

// NewAnthropicModel creates a model client. An empty model name uses Claude Sonnet 4.
func NewAnthropicModel(apiKey, model string) (*AnthropicModel, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	return &AnthropicModel{messages: newAnthropicClient(apiKey), model: anthropic.Model(model)}, nil
}

// Analyze sends one request and concatenates the text blocks of the answer
func (a *AnthropicModel) Analyze(ctx context.Context, req Request) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: anthropicMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: req.System}},
		Messages: []anthropic.MessageParam{anthropic.NewUserMessage(
			anthropic.NewImageBlockBase64(req.Image.MediaType, req.Image.Base64()),
			anthropic.NewTextBlock(req.User),
		)},
		Temperature: anthropic.Float(Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("%w: anthropic: %v", types.ErrUpstreamUnavailable, err)
	}

	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}
