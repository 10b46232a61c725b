package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCore is a scriptable CoreLLM for middleware tests.
type fakeCore struct {
	mu        sync.Mutex
	model     string
	responses []string
	errs      []error
	calls     int
	lastCtx   context.Context
}

func (f *fakeCore) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCtx = ctx
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", 0, 0, err
	}
	resp := "ok"
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return resp, 10, 5, nil
}

func (f *fakeCore) GetModel() string  { return f.model }
func (f *fakeCore) SetModel(m string) { f.model = m }

func (f *fakeCore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRetryMiddlewareRecoversFromTransientErrors(t *testing.T) {
	core := &fakeCore{
		model: "gpt-4o",
		errs: []error{
			NewProviderError("openai", ErrorTypeServerError, 500, "boom", nil),
			NewProviderError("openai", ErrorTypeRateLimit, 429, "slow down", nil),
			nil,
		},
		responses: []string{"", "", "recovered"},
	}

	wrapped := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(core)
	resp, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil)

	require.NoError(t, err)
	assert.Equal(t, "recovered", resp)
	assert.Equal(t, 3, core.callCount())
}

func TestRetryMiddlewareStopsOnNonRetryable(t *testing.T) {
	core := &fakeCore{
		model: "gpt-4o",
		errs:  []error{NewProviderError("openai", ErrorTypeAuthentication, 401, "bad key", nil)},
	}

	wrapped := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(core)
	_, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil)

	require.Error(t, err)
	assert.Equal(t, 1, core.callCount(), "authentication errors must not be retried")

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrorTypeAuthentication, pe.Type)
}

func TestRetryMiddlewareExhaustsAttempts(t *testing.T) {
	transient := NewProviderError("openai", ErrorTypeServerError, 503, "unavailable", nil)
	core := &fakeCore{model: "gpt-4o", errs: []error{transient, transient, transient}}

	wrapped := RetryMiddleware(2, time.Millisecond, 5*time.Millisecond)(core)
	_, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil)

	require.Error(t, err)
	assert.Equal(t, 3, core.callCount())
}

func TestTimeoutMiddlewareSetsDeadline(t *testing.T) {
	core := &fakeCore{model: "gpt-4o"}
	wrapped := TimeoutMiddleware(time.Second)(core)

	_, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil)
	require.NoError(t, err)

	_, hasDeadline := core.lastCtx.Deadline()
	assert.True(t, hasDeadline)
}

func TestRateLimitMiddlewarePacesRequests(t *testing.T) {
	core := &fakeCore{model: "gpt-4o"}
	// 1 req/s with burst 1 forces the second request to wait.
	wrapped := RateLimitMiddleware(1, 1)(core)

	_, _, _, err := wrapped.DoRequest(context.Background(), "first", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, _, err = wrapped.DoRequest(ctx, "second", nil)
	require.Error(t, err, "second request should be blocked past the context deadline")
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker(2, 20*time.Millisecond)
	boom := errors.New("boom")

	require.Error(t, cb.Call(func() error { return boom }))
	assert.Equal(t, CircuitClosed, cb.State())
	require.Error(t, cb.Call(func() error { return boom }))
	assert.Equal(t, CircuitOpen, cb.State())

	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)

	time.Sleep(25 * time.Millisecond)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerMiddlewareShortCircuits(t *testing.T) {
	boom := NewProviderError("openai", ErrorTypeServerError, 500, "boom", nil)
	core := &fakeCore{model: "gpt-4o", errs: []error{boom, boom, boom, boom}}

	wrapped := CircuitBreakerMiddleware(2, time.Minute)(core)
	ctx := context.Background()

	_, _, _, _ = wrapped.DoRequest(ctx, "a", nil)
	_, _, _, _ = wrapped.DoRequest(ctx, "b", nil)

	_, _, _, err := wrapped.DoRequest(ctx, "c", nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, core.callCount(), "open circuit must not reach the provider")
}

// recordingCollector captures metric calls for assertions.
type recordingCollector struct {
	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string]int
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{
		counters:   make(map[string]float64),
		histograms: make(map[string]int),
	}
}

func (r *recordingCollector) RecordLatency(string, time.Duration, map[string]string) {}

func (r *recordingCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[metric+":"+labels["status"]] += value
}

func (r *recordingCollector) RecordGauge(string, float64, map[string]string) {}

func (r *recordingCollector) RecordHistogram(metric string, _ float64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms[metric]++
}

func TestMetricsMiddlewareRecordsOutcomes(t *testing.T) {
	collector := newRecordingCollector()
	core := &fakeCore{model: "gpt-4o"}

	wrapped := MetricsMiddleware(collector)(core)
	_, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, collector.counters["judge_llm_requests_total:success"])
	assert.Equal(t, 1, collector.histograms["judge_llm_latency_seconds"])
}

func TestProviderFromModel(t *testing.T) {
	assert.Equal(t, "openai", providerFromModel("gpt-4o-mini"))
	assert.Equal(t, "anthropic", providerFromModel("claude-3-5-sonnet"))
	assert.Equal(t, "google", providerFromModel("gemini-2.0-flash"))
	assert.Equal(t, "unknown", providerFromModel("mistral-large"))
}
