package gen

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaClient implements Generator against a local Ollama server.
type OllamaClient struct {
	client  *api.Client
	model   string
	hostURL string
}

// NewOllamaClient creates an Ollama-backed generator. hostURL is the
// server URL, e.g. "http://localhost:11434".
func NewOllamaClient(hostURL, model string) *OllamaClient {
	parsedURL, err := url.Parse(hostURL)
	if err != nil {
		parsedURL, _ = url.Parse("http://localhost:11434")
	}
	return &OllamaClient{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   model,
		hostURL: hostURL,
	}
}

// Complete implements Generator.
func (o *OllamaClient) Complete(ctx context.Context, req Request) (Response, error) {
	messages := make([]api.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	stream := false
	chatReq := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}

	var response api.ChatResponse
	err := o.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return Response{}, classifyOllamaError(err)
	}

	text := response.Message.Content
	if text == "" {
		return Response{}, ErrEmptyResponse
	}

	out := Response{
		Text:      text,
		TokensIn:  response.Metrics.PromptEvalCount,
		TokensOut: response.Metrics.EvalCount,
	}
	if out.TokensIn == 0 && out.TokensOut == 0 {
		out.TokensIn = CountTokensSimple(req.System + req.Prompt)
		out.TokensOut = CountTokensSimple(text)
	}
	return out, nil
}

// ModelName implements Generator.
func (o *OllamaClient) ModelName() string { return o.model }

func classifyOllamaError(err error) error {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return fmt.Errorf("%w: Ollama server not reachable at %s", ErrBackendUnavailable, errStr)
	case strings.Contains(errStr, "not found"):
		return fmt.Errorf("%w: Ollama model not found: %s", ErrBackendUnavailable, errStr)
	default:
		return fmt.Errorf("%w: Ollama API error: %s", ErrBackendUnavailable, errStr)
	}
}
