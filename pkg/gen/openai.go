package gen

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIClient implements Generator using the official OpenAI Go SDK's
// Responses API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI-backed generator.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements Generator.
func (o *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	inputText := req.Prompt
	if req.System != "" {
		inputText = fmt.Sprintf("System: %s\n\n%s", req.System, req.Prompt)
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(req.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(inputText)},
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("%w: OpenAI Responses API: %v", ErrBackendUnavailable, err)
	}
	if resp == nil {
		return Response{}, ErrEmptyResponse
	}

	text := resp.OutputText()
	if text == "" {
		return Response{}, ErrEmptyResponse
	}

	out := Response{
		Text:      text,
		TokensIn:  int(resp.Usage.InputTokens),
		TokensOut: int(resp.Usage.OutputTokens),
	}
	if out.TokensIn == 0 && out.TokensOut == 0 {
		out.TokensIn = CountTokensSimple(inputText)
		out.TokensOut = CountTokensSimple(text)
	}
	return out, nil
}

// ModelName implements Generator.
func (o *OpenAIClient) ModelName() string { return o.model }
