package llm

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// retryTransport retries failed requests with exponential backoff and
// jitter. Non-retryable provider errors and open circuits stop the loop
// early.
type retryTransport struct {
	next       CoreLLM
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware retries failed requests up to maxRetries times with
// exponential backoff between baseDelay and maxDelay.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &retryTransport{
			next:       next,
			maxRetries: maxRetries,
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

// DoRequest executes the request, retrying transient failures.
func (r *retryTransport) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		response, tokensIn, tokensOut, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return response, tokensIn, tokensOut, nil
		}
		lastErr = err

		if err == ErrCircuitOpen || ctx.Err() != nil || !retryable(err) {
			break
		}
		if attempt == r.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		case <-time.After(r.backoff(attempt)):
		}
	}

	return "", 0, 0, fmt.Errorf("request failed after retries: %w", lastErr)
}

func retryable(err error) bool {
	if pe, ok := err.(*ProviderError); ok {
		return pe.IsRetryable()
	}
	// Unclassified errors are assumed transient.
	return true
}

func (r *retryTransport) backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	// #nosec G115 - attempt is bounded between 0 and 30
	delay := time.Duration(float64(r.baseDelay) * float64(int64(1)<<uint(attempt)))

	// Jitter of ±25% spreads concurrent retries apart.
	// #nosec G404 - weak RNG is fine for jitter
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - delay/4

	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	return delay
}

// GetModel returns the model name from the wrapped implementation.
func (r *retryTransport) GetModel() string { return r.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (r *retryTransport) SetModel(m string) { r.next.SetModel(m) }

// deadlineTransport enforces a per-request timeout.
type deadlineTransport struct {
	next    CoreLLM
	timeout time.Duration
}

// TimeoutMiddleware bounds every request with the given timeout.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &deadlineTransport{next: next, timeout: timeout}
	}
}

// DoRequest executes the request under a deadline.
func (t *deadlineTransport) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DoRequest(ctx, prompt, opts)
}

// GetModel returns the model name from the wrapped implementation.
func (t *deadlineTransport) GetModel() string { return t.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (t *deadlineTransport) SetModel(m string) { t.next.SetModel(m) }

// pacedTransport paces requests with a token bucket so provider rate limits
// are respected across concurrent callers.
type pacedTransport struct {
	next    CoreLLM
	limiter *rate.Limiter
}

// RateLimitMiddleware enforces limit requests per second with the given
// burst allowance. All wrapped callers share one bucket.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)
	return func(next CoreLLM) CoreLLM {
		return &pacedTransport{next: next, limiter: limiter}
	}
}

// DoRequest blocks until a rate token is available, then forwards the
// request.
func (p *pacedTransport) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", 0, 0, fmt.Errorf("rate limit: %w", err)
	}
	return p.next.DoRequest(ctx, prompt, opts)
}

// GetModel returns the model name from the wrapped implementation.
func (p *pacedTransport) GetModel() string { return p.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (p *pacedTransport) SetModel(m string) { p.next.SetModel(m) }
