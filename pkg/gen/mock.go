package gen

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockGenerator is a deterministic in-process generator for tests and
// offline operation. Responses can be scripted per prompt substring;
// unmatched prompts get a canned echo.
type MockGenerator struct {
	model     string
	mu        sync.Mutex
	scripted  map[string]string
	failNext  error
	callCount int
}

// NewMockGenerator creates a mock generator.
func NewMockGenerator(model string) *MockGenerator {
	if model == "" {
		model = "mock"
	}
	return &MockGenerator{
		model:    model,
		scripted: make(map[string]string),
	}
}

// Script registers a response returned when the prompt contains the
// given substring.
func (m *MockGenerator) Script(promptContains, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted[promptContains] = response
}

// FailNext makes the next Complete call return err.
func (m *MockGenerator) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// CallCount reports how many Complete calls have been made.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Complete implements Generator.
func (m *MockGenerator) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	m.mu.Lock()
	m.callCount++
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		m.mu.Unlock()
		return Response{}, err
	}
	var text string
	for substr, resp := range m.scripted {
		if substr != "" && containsFold(req.Prompt, substr) {
			text = resp
			break
		}
	}
	m.mu.Unlock()

	if text == "" {
		text = fmt.Sprintf("[mock %s] %s", m.model, truncate(req.Prompt, 120))
	}

	return Response{
		Text:      text,
		TokensIn:  CountTokensSimple(req.System + req.Prompt),
		TokensOut: CountTokensSimple(text),
	}, nil
}

// ModelName implements Generator.
func (m *MockGenerator) ModelName() string { return m.model }

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
