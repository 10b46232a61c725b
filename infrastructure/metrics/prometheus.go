// Package metrics provides the Prometheus-backed implementation of the
// ports.MetricsCollector interface used by the judge transport and the
// evaluation components.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-caliper/internal/ports"
)

// PrometheusMetrics implements ports.MetricsCollector over a Prometheus
// registry. It tracks judge request volume, latency, token spend, and
// calibration state gauges.
type PrometheusMetrics struct {
	requestCounter   *prometheus.CounterVec
	tokenCounter     *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
	operationLatency *prometheus.HistogramVec
	stateGauges      *prometheus.GaugeVec
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers the collector's metrics with reg. A nil
// registerer uses the default global registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		requestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "judge_requests_total",
				Help: "Total judge LLM requests by provider, model, and outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		tokenCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "judge_tokens_total",
				Help: "Total tokens consumed by judge LLM requests.",
			},
			[]string{"provider", "model", "token_type"},
		),
		requestLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "judge_request_duration_seconds",
				Help:    "Latency of individual judge LLM requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model"},
		),
		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "evaluation_operation_duration_seconds",
				Help:    "Latency of calibration and evaluation operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		stateGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "evaluation_state",
				Help: "Current evaluation state values such as judge error rates.",
			},
			[]string{"metric", "model"},
		),
	}
}

// RecordLatency records an operation duration in the operation histogram.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, _ map[string]string) {
	pm.operationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter increments the counter selected by the metric name.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "judge_llm_requests_total":
		pm.requestCounter.WithLabelValues(
			labels["provider"], labels["model"], labels["status"],
		).Add(value)
	case "judge_llm_tokens_total":
		pm.tokenCounter.WithLabelValues(
			labels["provider"], labels["model"], labels["token_type"],
		).Add(value)
	default:
		pm.requestCounter.WithLabelValues(
			labels["provider"], labels["model"], metric,
		).Add(value)
	}
}

// RecordGauge sets a named state gauge.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	pm.stateGauges.WithLabelValues(metric, labels["model"]).Set(value)
}

// RecordHistogram records a value in the request latency histogram.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case "judge_llm_latency_seconds":
		pm.requestLatency.WithLabelValues(labels["provider"], labels["model"]).Observe(value)
	default:
		pm.operationLatency.WithLabelValues(metric).Observe(value)
	}
}
