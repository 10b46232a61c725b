// Package ports defines the boundary interfaces between the calibration
// engine's domain logic and its infrastructure. Implementations live under
// infrastructure/; the judges and bias analyzers depend only on these
// interfaces.
package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-caliper/internal/domain"
)

// JudgeCaller is the capability every judge-backed component is built on:
// ask one judge model for a pass/fail decision about one candidate output.
//
// Implementations own prompt construction, transport, retries, and response
// parsing. A returned error means the judge could not produce a usable
// judgment after those recovery layers ran; callers treat the sample as
// failed rather than guessing a verdict.
type JudgeCaller interface {
	// CallJudge evaluates output against criteria for the given input.
	// The options map carries per-call overrides (temperature, max
	// tokens) in provider-neutral form.
	CallJudge(ctx context.Context, input, output, criteria string, options map[string]any) (domain.Judgment, error)

	// Model returns the identifier of the judge model, used to label
	// votes, metrics, and errors.
	Model() string
}

// LLMClient defines the interface for interacting with Large Language Model
// providers. Implementations handle provider-specific authentication,
// request formatting, and response parsing.
type LLMClient interface {
	// Complete sends a completion request to the LLM provider and
	// returns the generated text. The options map allows flexibility
	// for different providers without changing the interface; common
	// options include "temperature" (float64), "max_tokens" (int), and
	// "model" (string).
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens calculates the approximate token count for a given
	// text. The estimation method may vary by provider.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier being used by this client.
	GetModel() string
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus or OpenTelemetry.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
