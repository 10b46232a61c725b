package llm

import (
	"context"
	"strings"
	"time"

	"github.com/ahrav/go-caliper/internal/ports"
)

// meteredTransport records latency, request counts, and token usage for
// every call.
type meteredTransport struct {
	next      CoreLLM
	collector ports.MetricsCollector
}

// MetricsMiddleware records per-request metrics through the given collector.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &meteredTransport{next: next, collector: collector}
	}
}

// DoRequest executes the request while recording latency, outcome, and
// token usage.
func (m *meteredTransport) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)

	labels := map[string]string{
		"provider": providerFromModel(m.next.GetModel()),
		"model":    m.next.GetModel(),
		"status":   "success",
	}
	switch {
	case err == nil:
	case err == ErrCircuitOpen:
		labels["status"] = "circuit_open"
	case ctx.Err() == context.DeadlineExceeded:
		labels["status"] = "timeout"
	default:
		labels["status"] = "error"
	}

	if m.collector != nil {
		m.collector.RecordHistogram("judge_llm_latency_seconds", time.Since(start).Seconds(), labels)
		m.collector.RecordCounter("judge_llm_requests_total", 1, labels)
		if err == nil {
			labels["token_type"] = "input"
			m.collector.RecordCounter("judge_llm_tokens_total", float64(tokensIn), labels)
			labels["token_type"] = "output"
			m.collector.RecordCounter("judge_llm_tokens_total", float64(tokensOut), labels)
		}
	}

	return response, tokensIn, tokensOut, err
}

func providerFromModel(model string) string {
	switch {
	case strings.Contains(model, "gpt"):
		return "openai"
	case strings.Contains(model, "claude"):
		return "anthropic"
	case strings.Contains(model, "gemini"):
		return "google"
	default:
		return "unknown"
	}
}

// GetModel returns the model name from the wrapped implementation.
func (m *meteredTransport) GetModel() string { return m.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (m *meteredTransport) SetModel(model string) { m.next.SetModel(model) }
