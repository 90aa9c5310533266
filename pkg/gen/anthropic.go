package gen

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements Generator using the Anthropic Go SDK.
type AnthropicClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicClient creates a Claude-backed generator.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// Complete implements Generator. The system text goes into the
// top-level system parameter, never the messages array.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, fmt.Errorf("prompt cannot be empty")
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: req.System,
			Type: "text",
		}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("%w: Anthropic Messages API: %v", ErrBackendUnavailable, err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return Response{}, ErrEmptyResponse
	}

	var sb strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := sb.String()
	if text == "" {
		return Response{}, ErrEmptyResponse
	}

	return Response{
		Text:      text,
		TokensIn:  int(resp.Usage.InputTokens),
		TokensOut: int(resp.Usage.OutputTokens),
	}, nil
}

// ModelName implements Generator.
func (c *AnthropicClient) ModelName() string { return string(c.model) }
