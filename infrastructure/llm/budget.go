package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-crossval/internal/ports"
)

// ErrBudgetExceeded is wrapped by every BudgetExceededError.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Budget caps the model usage of a whole run. Zero means unlimited.
type Budget struct {
	MaxTokens int64 `yaml:"max_tokens" json:"max_tokens" validate:"gte=0"`
	MaxCalls  int64 `yaml:"max_calls" json:"max_calls" validate:"gte=0"`
}

// Unlimited reports whether b imposes no cap.
func (b Budget) Unlimited() bool { return b.MaxTokens == 0 && b.MaxCalls == 0 }

// BudgetExceededError reports which limit stopped a request.
type BudgetExceededError struct {
	// LimitType is "tokens" or "calls".
	LimitType string
	Limit     int64
	Used      int64
}

// Error implements the error interface for BudgetExceededError.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: %s limit=%d, used=%d", e.LimitType, e.Limit, e.Used)
}

// Unwrap returns ErrBudgetExceeded.
func (e *BudgetExceededError) Unwrap() error { return ErrBudgetExceeded }

// Usage is the model consumption recorded by a budget.
type Usage struct {
	Tokens int64
	Calls  int64
}

// BudgetTracker counts usage shared by every client wrapped with its
// middleware.
type BudgetTracker struct {
	budget  Budget
	metrics ports.MetricsCollector

	mu    sync.Mutex
	usage Usage
}

// NewBudgetTracker returns a tracker for b. metrics may be nil.
func NewBudgetTracker(b Budget, metrics ports.MetricsCollector) *BudgetTracker {
	return &BudgetTracker{budget: b, metrics: metrics}
}

// Usage returns the consumption so far.
func (t *BudgetTracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// admit reserves one call, refusing it once either limit is reached.
func (t *BudgetTracker) admit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.budget.MaxCalls > 0 && t.usage.Calls >= t.budget.MaxCalls {
		return &BudgetExceededError{LimitType: "calls", Limit: t.budget.MaxCalls, Used: t.usage.Calls}
	}
	if t.budget.MaxTokens > 0 && t.usage.Tokens >= t.budget.MaxTokens {
		return &BudgetExceededError{LimitType: "tokens", Limit: t.budget.MaxTokens, Used: t.usage.Tokens}
	}
	t.usage.Calls++
	return nil
}

func (t *BudgetTracker) charge(tokens int) Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.Tokens += int64(tokens)
	return t.usage
}

// BudgetMiddleware refuses requests once the tracker's budget is spent.
// Tokens are charged after each call, so the call that crosses the token
// limit still completes.
func BudgetMiddleware(t *BudgetTracker) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &budgetLLM{wrapped: wrapped{next}, tracker: t}
	}
}

type budgetLLM struct {
	wrapped
	tracker *BudgetTracker
}

func (b *budgetLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	span := trace.SpanFromContext(ctx)
	if err := b.tracker.admit(); err != nil {
		var be *BudgetExceededError
		if errors.As(err, &be) {
			span.AddEvent("budget.exceeded", trace.WithAttributes(
				attribute.String("limit_type", be.LimitType),
				attribute.Int64("limit_value", be.Limit),
				attribute.Int64("used_value", be.Used),
			))
			if b.tracker.metrics != nil {
				b.tracker.metrics.RecordCounter("llm_budget_exceeded_total", 1, map[string]string{"limit_type": be.LimitType})
			}
		}
		return "", 0, 0, err
	}

	out, in, outTokens, err := b.next.DoRequest(ctx, prompt, opts)
	usage := b.tracker.charge(in + outTokens)
	span.SetAttributes(
		attribute.Int64("budget.tokens_used", usage.Tokens),
		attribute.Int64("budget.calls_used", usage.Calls),
	)
	if m := b.tracker.metrics; m != nil {
		m.RecordGauge("llm_budget_tokens_used", float64(usage.Tokens), nil)
		m.RecordGauge("llm_budget_calls_used", float64(usage.Calls), nil)
	}
	return out, in, outTokens, err
}
