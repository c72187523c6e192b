// Package testutils provides fakes and dataset fixtures shared by the
// package tests.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ahrav/go-crossval/internal/ports"
)

var _ ports.LLMClient = (*MockLLMClient)(nil)

// MockLLMClient implements ports.LLMClient with deterministic replies
// chosen by substring match on the prompt.
type MockLLMClient struct {
	model string

	mu        sync.Mutex
	responses []MockResponse
	fallback  string
	calls     []string
}

// MockResponse pairs a prompt pattern with a reply.
type MockResponse struct {
	// Pattern is matched case-insensitively against the prompt.
	Pattern  string
	Response string
	// Err, when set, is returned instead of Response.
	Err error
}

// NewMockLLMClient returns a client whose unmatched prompts receive a
// confident full-marks verdict.
func NewMockLLMClient(model string) *MockLLMClient {
	return &MockLLMClient{
		model:    model,
		fallback: Verdict(2, 0.9, "Label is justified by the scenario."),
	}
}

// Verdict renders the judge's JSON reply.
func Verdict(score, confidence float64, reasoning string) string {
	return fmt.Sprintf(`{"score": %g, "confidence": %g, "reasoning": %q}`, score, confidence, reasoning)
}

// AddResponse registers a reply. Patterns are tried in registration order.
func (m *MockLLMClient) AddResponse(r MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, r)
}

// SetFallback replaces the reply for unmatched prompts.
func (m *MockLLMClient) SetFallback(reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = reply
}

// Complete implements ports.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, _ map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, prompt)

	lower := strings.ToLower(prompt)
	for _, r := range m.responses {
		if strings.Contains(lower, strings.ToLower(r.Pattern)) {
			if r.Err != nil {
				return "", r.Err
			}
			return r.Response, nil
		}
	}
	return m.fallback, nil
}

// EstimateTokens approximates four characters per token.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return max(1, len(text)/4), nil
}

// GetModel implements ports.LLMClient.
func (m *MockLLMClient) GetModel() string { return m.model }

// Calls returns the prompts received so far.
func (m *MockLLMClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
