package gen

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides token counting for prompt budgeting and for
// backends that do not report usage. All models approximate with the
// GPT-4 encoding.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text. Falls
// back to character-based estimation (4 chars per token) when the codec
// is missing or errors.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// TruncateToTokenLimit truncates text to fit within a token limit. The
// cut is proportional by characters, not at an exact token boundary.
func (tc *TokenCounter) TruncateToTokenLimit(text string, limit int) string {
	currentTokens := tc.CountTokens(text)
	if currentTokens <= limit {
		return text
	}

	ratio := float64(limit) / float64(currentTokens)
	charLimit := int(float64(len(text)) * ratio * 0.9) // safety margin
	if charLimit >= len(text) {
		return text
	}
	return text[:charLimit] + "..."
}

// CountTokensSimple counts tokens without a TokenCounter instance.
func CountTokensSimple(text string) int {
	counter, err := NewTokenCounter()
	if err != nil {
		return len(text) / 4
	}
	return counter.CountTokens(text)
}
