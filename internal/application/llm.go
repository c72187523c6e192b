package application

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-crossval/infrastructure/llm"
	"github.com/ahrav/go-crossval/internal/ports"
)

var defaultModels = map[string]string{
	"anthropic": llm.AnthropicDefaultModel,
	"openai":    llm.OpenAIDefaultModel,
	"google":    llm.GoogleDefaultModel,
}

// NewLLMClient builds the judge's client from cfg. The middleware chain,
// outermost first, is tracing, metrics, rate limiting, retry, the run
// budget and the per-attempt timeout. A nil collector skips the metrics layer.
func NewLLMClient(cfg JudgeConfig, collector ports.MetricsCollector) (*llm.Client, error) {
	var mws []llm.Middleware
	mws = append(mws, llm.TracingMiddleware(cfg.Provider))
	if collector != nil {
		mws = append(mws, llm.MetricsMiddleware(cfg.Provider, collector))
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		mws = append(mws, llm.RateLimitMiddleware(rate.Limit(cfg.RequestsPerSecond), burst))
	}
	if cfg.MaxRetries > 0 {
		mws = append(mws, llm.RetryMiddleware(cfg.MaxRetries, cfg.RetryBaseDelay, cfg.RetryMaxDelay))
	}
	if !cfg.Budget.Unlimited() {
		mws = append(mws, llm.BudgetMiddleware(llm.NewBudgetTracker(cfg.Budget, collector)))
	}
	if cfg.Timeout > 0 {
		mws = append(mws, llm.TimeoutMiddleware(cfg.Timeout))
	}

	model := cfg.Model
	if model == "" {
		model = defaultModels[cfg.Provider]
	}
	client, err := llm.NewClient(cfg.Provider, llm.ClientConfig{
		APIKey:     cfg.APIKey,
		Model:      model,
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		Middleware: mws,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}
	return client, nil
}
