package llm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-crossval/internal/ports"
)

// wrapped forwards model accessors to the next CoreLLM.
type wrapped struct{ next CoreLLM }

func (w wrapped) GetModel() string  { return w.next.GetModel() }
func (w wrapped) SetModel(m string) { w.next.SetModel(m) }

// RateLimitMiddleware blocks each request until the shared limiter admits it.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)
	return func(next CoreLLM) CoreLLM {
		return &rateLimitedLLM{wrapped: wrapped{next}, limiter: limiter}
	}
}

type rateLimitedLLM struct {
	wrapped
	limiter *rate.Limiter
}

func (r *rateLimitedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", 0, 0, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.DoRequest(ctx, prompt, opts)
}

// RetryMiddleware retries transient failures with exponential backoff and
// jitter, capped at maxDelay.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{wrapped: wrapped{next}, maxRetries: maxRetries, baseDelay: baseDelay, maxDelay: maxDelay}
	}
}

type retryLLM struct {
	wrapped
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func (r *retryLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		out, in, outTok, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return out, in, outTok, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsRetryable(err) || attempt == r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		case <-time.After(r.delay(attempt)):
		}
	}
	return "", 0, 0, fmt.Errorf("request failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

// delay is baseDelay*2^attempt with ±25% jitter.
func (r *retryLLM) delay(attempt int) time.Duration {
	attempt = max(0, min(attempt, 30))
	d := time.Duration(float64(r.baseDelay) * float64(int64(1)<<attempt))
	d = d - d/4 + time.Duration(rand.Float64()*float64(d)/2)
	if r.maxDelay > 0 && d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

// TimeoutMiddleware bounds every request with timeout.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &timeoutLLM{wrapped: wrapped{next}, timeout: timeout}
	}
}

type timeoutLLM struct {
	wrapped
	timeout time.Duration
}

func (t *timeoutLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DoRequest(ctx, prompt, opts)
}

// MetricsMiddleware records latency, request outcomes and token usage.
func MetricsMiddleware(provider string, collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{wrapped: wrapped{next}, provider: provider, collector: collector}
	}
}

type metricsLLM struct {
	wrapped
	provider  string
	collector ports.MetricsCollector
}

func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	out, in, outTok, err := m.next.DoRequest(ctx, prompt, opts)
	if m.collector == nil {
		return out, in, outTok, err
	}

	status := "success"
	switch {
	case err != nil && ctx.Err() == context.DeadlineExceeded:
		status = "timeout"
	case err != nil:
		status = "error"
	}
	labels := map[string]string{"provider": m.provider, "model": m.next.GetModel(), "status": status}
	m.collector.RecordLatency("llm_request", time.Since(start), labels)
	m.collector.RecordCounter("llm_requests_total", 1, labels)
	if err == nil {
		m.collector.RecordCounter("llm_tokens_total", float64(in),
			map[string]string{"provider": m.provider, "model": m.next.GetModel(), "token_type": "input"})
		m.collector.RecordCounter("llm_tokens_total", float64(outTok),
			map[string]string{"provider": m.provider, "model": m.next.GetModel(), "token_type": "output"})
	}
	return out, in, outTok, err
}

// TracingMiddleware wraps each request in a span named "llm.request".
func TracingMiddleware(provider string) Middleware {
	tracer := otel.Tracer("crossval/llm")
	return func(next CoreLLM) CoreLLM {
		return &tracingLLM{wrapped: wrapped{next}, provider: provider, tracer: tracer}
	}
}

type tracingLLM struct {
	wrapped
	provider string
	tracer   trace.Tracer
}

func (t *tracingLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ctx, span := t.tracer.Start(ctx, "llm.request", trace.WithAttributes(
		attribute.String("llm.provider", t.provider),
		attribute.String("llm.model", t.next.GetModel()),
		attribute.Int("llm.prompt_chars", len(prompt)),
	))
	defer span.End()

	out, in, outTok, err := t.next.DoRequest(ctx, prompt, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, in, outTok, err
	}
	span.SetAttributes(attribute.Int("llm.tokens_in", in), attribute.Int("llm.tokens_out", outTok))
	return out, in, outTok, nil
}
