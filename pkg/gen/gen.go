// Package gen abstracts the text generation backends behind a single
// Generator interface. Two tiers exist: a fast tier for status
// summaries and intent assistance, and a deep tier for narratives and
// drafting. Backends report real token usage when the API provides it
// and fall back to tiktoken counting when it does not.
package gen

import (
	"context"
	"errors"
	"fmt"

	"caseflow/pkg/config"
)

// Sentinel errors for backend failures. Callers degrade to template
// output rather than failing the dispatch.
var (
	ErrBackendUnavailable = errors.New("generation backend unavailable")
	ErrEmptyResponse      = errors.New("empty response from generation backend")
)

// Request is a single-turn generation request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Response carries the generated text and actual token usage.
type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Tokens returns total tokens consumed by the call.
func (r Response) Tokens() int { return r.TokensIn + r.TokensOut }

// Generator is implemented by each backend client.
type Generator interface {
	// Complete performs a single-turn completion. Implementations must
	// honor ctx cancellation.
	Complete(ctx context.Context, req Request) (Response, error)
	// ModelName identifies the underlying model for logging and cost
	// attribution.
	ModelName() string
}

// New constructs a Generator for the given tier configuration.
func New(m config.ModelCfg, ollamaHost string) (Generator, error) {
	switch m.Backend {
	case config.BackendOpenAI:
		apiKey, err := config.ResolveAPIKey(m.Backend)
		if err != nil {
			return nil, err
		}
		return NewOpenAIClient(apiKey, m.Model), nil
	case config.BackendAnthropic:
		apiKey, err := config.ResolveAPIKey(m.Backend)
		if err != nil {
			return nil, err
		}
		return NewAnthropicClient(apiKey, m.Model), nil
	case config.BackendOllama:
		return NewOllamaClient(ollamaHost, m.Model), nil
	case config.BackendMock:
		return NewMockGenerator(m.Model), nil
	default:
		return nil, fmt.Errorf("unknown generation backend %q", m.Backend)
	}
}

// CostUSD computes the dollar cost of a response under a tier's pricing.
func CostUSD(m config.ModelCfg, resp Response) float64 {
	return float64(resp.TokensIn)/1000.0*m.CostPer1KIn +
		float64(resp.TokensOut)/1000.0*m.CostPer1KOut
}
