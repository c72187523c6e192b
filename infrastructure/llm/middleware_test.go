package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-crossval/internal/ports"
)

// fakeCore replays a fixed sequence of errors before succeeding.
type fakeCore struct {
	mu       sync.Mutex
	model    string
	errs     []error
	calls    int
	lastOpts map[string]any
	block    bool
}

func (f *fakeCore) DoRequest(ctx context.Context, _ string, opts map[string]any) (string, int, int, error) {
	f.mu.Lock()
	f.calls++
	f.lastOpts = opts
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", 0, 0, ctx.Err()
	}
	if err != nil {
		return "", 0, 0, err
	}
	return "ok", 3, 5, nil
}

func (f *fakeCore) GetModel() string  { return f.model }
func (f *fakeCore) SetModel(m string) { f.model = m }

type recordingCollector struct {
	mu       sync.Mutex
	counters map[string]float64
	latency  int
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{counters: map[string]float64{}}
}

func (r *recordingCollector) RecordLatency(string, time.Duration, map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latency++
}

func (r *recordingCollector) RecordCounter(metric string, v float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := metric
	if s := labels["status"]; s != "" {
		key += "/" + s
	}
	if tt := labels["token_type"]; tt != "" {
		key += "/" + tt
	}
	r.counters[key] += v
}

func (r *recordingCollector) RecordGauge(string, float64, map[string]string)     {}
func (r *recordingCollector) RecordHistogram(string, float64, map[string]string) {}

var _ ports.MetricsCollector = (*recordingCollector)(nil)

func TestRetryMiddleware(t *testing.T) {
	serverErr := NewProviderError("test", ErrorTypeServerError, 503, "down", nil)
	authErr := NewProviderError("test", ErrorTypeAuthentication, 401, "bad key", nil)

	tests := []struct {
		name      string
		errs      []error
		wantErr   error
		wantCalls int
	}{
		{name: "succeeds first time", wantCalls: 1},
		{name: "recovers after transient errors", errs: []error{serverErr, serverErr}, wantCalls: 3},
		{name: "gives up after max retries", errs: []error{serverErr, serverErr, serverErr, serverErr}, wantErr: serverErr, wantCalls: 3},
		{name: "does not retry auth errors", errs: []error{authErr}, wantErr: authErr, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core := &fakeCore{model: "m", errs: tt.errs}
			llm := RetryMiddleware(2, time.Millisecond, 5*time.Millisecond)(core)

			out, _, _, err := llm.DoRequest(context.Background(), "p", nil)
			assert.Equal(t, tt.wantCalls, core.calls)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", out)
		})
	}
}

func TestRetryMiddleware_Delay(t *testing.T) {
	r := &retryLLM{baseDelay: 100 * time.Millisecond, maxDelay: time.Second}
	for attempt := 0; attempt < 3; attempt++ {
		base := 100 * time.Millisecond << attempt
		d := r.delay(attempt)
		assert.GreaterOrEqual(t, d, base-base/4)
		assert.LessOrEqual(t, d, base+base/4)
	}
	assert.Equal(t, time.Second, r.delay(10))
}

func TestTimeoutMiddleware(t *testing.T) {
	core := &fakeCore{model: "m", block: true}
	llm := TimeoutMiddleware(10 * time.Millisecond)(core)

	_, _, _, err := llm.DoRequest(context.Background(), "p", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimitMiddleware_Cancelled(t *testing.T) {
	core := &fakeCore{model: "m"}
	llm := RateLimitMiddleware(rate.Every(time.Hour), 1)(core)

	_, _, _, err := llm.DoRequest(context.Background(), "p", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, _, err = llm.DoRequest(ctx, "p", nil)
	assert.Error(t, err)
	assert.Equal(t, 1, core.calls)
}

func TestMetricsMiddleware(t *testing.T) {
	col := newRecordingCollector()
	core := &fakeCore{model: "m", errs: []error{errors.New("boom")}}
	llm := MetricsMiddleware("test", col)(core)

	_, _, _, err := llm.DoRequest(context.Background(), "p", nil)
	require.Error(t, err)
	_, _, _, err = llm.DoRequest(context.Background(), "p", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, col.latency)
	assert.Equal(t, 1.0, col.counters["llm_requests_total/error"])
	assert.Equal(t, 1.0, col.counters["llm_requests_total/success"])
	assert.Equal(t, 3.0, col.counters["llm_tokens_total/input"])
	assert.Equal(t, 5.0, col.counters["llm_tokens_total/output"])
}

func TestTracingMiddleware_PassesThrough(t *testing.T) {
	core := &fakeCore{model: "m", errs: []error{errors.New("boom")}}
	llm := TracingMiddleware("test")(core)

	_, _, _, err := llm.DoRequest(context.Background(), "p", nil)
	assert.EqualError(t, err, "boom")
	out, in, outTok, err := llm.DoRequest(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, in)
	assert.Equal(t, 5, outTok)
	assert.Equal(t, "m", llm.GetModel())
}
