// Package llm wraps the model providers used by the labeling-content judge
// behind ports.LLMClient. Providers register a factory by name; a Client
// composes a provider with middleware for rate limiting, retries, timeouts,
// metrics and tracing.
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/go-crossval/internal/ports"
)

// DefaultMaxTokens bounds the completion length when the caller sets none.
const DefaultMaxTokens = 1024

// CoreLLM is the minimal surface a provider implements.
type CoreLLM interface {
	// DoRequest sends prompt and returns the text plus input and output
	// token counts.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)
	GetModel() string
	SetModel(m string)
}

// TokenEstimator approximates token counts when a provider reports none.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// Middleware decorates a CoreLLM.
type Middleware func(CoreLLM) CoreLLM

// ClientConfig configures a provider and its middleware chain.
type ClientConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	Timeout        time.Duration
	TokenEstimator TokenEstimator
	// Middleware is applied so that the first entry is the outermost.
	Middleware []Middleware
}

// Client adapts a CoreLLM chain to ports.LLMClient.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
}

var _ ports.LLMClient = (*Client)(nil)

// ProviderFactory builds a provider from its config.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var (
	factoriesMu       sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProviderFactory makes a provider available to NewClient.
func RegisterProviderFactory(name string, f ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	providerFactories[name] = f
}

// Providers lists the registered provider names in sorted order.
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(providerFactories))
	for n := range providerFactories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewClient builds a Client for the named provider.
func NewClient(provider string, cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidModel)
	}

	factoriesMu.RLock()
	factory, ok := providerFactories[provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	core, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", provider, err)
	}
	return NewClientFromCore(core, cfg), nil
}

// NewClientFromCore wraps an already constructed provider.
func NewClientFromCore(core CoreLLM, cfg ClientConfig) *Client {
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		core = cfg.Middleware[i](core)
	}
	est := cfg.TokenEstimator
	if est == nil {
		est = SimpleTokenEstimator{}
	}
	return &Client{core: core, estimator: est}
}

// Complete implements ports.LLMClient.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	out, _, _, err := c.core.DoRequest(ctx, prompt, options)
	if err != nil {
		return "", ports.NewLLMError(c.core.GetModel(), "complete", err)
	}
	return out, nil
}

// EstimateTokens implements ports.LLMClient.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel implements ports.LLMClient.
func (c *Client) GetModel() string { return c.core.GetModel() }

// SimpleTokenEstimator assumes about four characters per token.
type SimpleTokenEstimator struct{}

// EstimateTokens returns ceil(len(text)/4).
func (SimpleTokenEstimator) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// requestOptions are the options every provider understands.
type requestOptions struct {
	model       string
	system      string
	maxTokens   int
	temperature *float64
}

func parseOptions(opts map[string]any, model string) requestOptions {
	ro := requestOptions{
		model:     extractString(opts, "model", model),
		system:    extractString(opts, "system", ""),
		maxTokens: extractInt(opts, "max_tokens", DefaultMaxTokens),
	}
	if v, ok := opts["temperature"]; ok {
		var t float64
		switch n := v.(type) {
		case float64:
			t = n
		case float32:
			t = float64(n)
		case int:
			t = float64(n)
		default:
			return ro
		}
		if t >= 0 && t <= 2 {
			ro.temperature = &t
		}
	}
	return ro
}

func extractString(opts map[string]any, key, def string) string {
	if s, ok := opts[key].(string); ok && s != "" {
		return s
	}
	return def
}

func extractInt(opts map[string]any, key string, def int) int {
	switch n := opts[key].(type) {
	case int:
		if n > 0 {
			return n
		}
	case int64:
		if n > 0 {
			return int(n)
		}
	case float64:
		if n > 0 {
			return int(n)
		}
	}
	return def
}

type baseProvider struct {
	mu    sync.RWMutex
	model string
}

func (b *baseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

func (b *baseProvider) SetModel(m string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = m
}
