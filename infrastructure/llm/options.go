package llm

import (
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Parameter bounds shared across providers.
const (
	// DefaultMaxTokens caps generation when the caller does not specify.
	DefaultMaxTokens = 1000

	// MinTemperature and MaxTemperature bound sampling temperature; 2.0
	// accommodates Gemini's extended range.
	MinTemperature = 0.0
	MaxTemperature = 2.0

	// MinTopP and MaxTopP bound nucleus sampling.
	MinTopP = 0.0
	MaxTopP = 1.0

	// MinTimeout and MaxTimeout bound per-request deadlines.
	MinTimeout = 1 * time.Second
	MaxTimeout = 10 * time.Minute
)

// BaseProvider supplies thread-safe model name handling shared by all
// providers.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the configured model name. Safe for concurrent use.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel updates the model name. Safe for concurrent use.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// RequestOptions is the provider-neutral parameter set parsed from a request
// options map.
type RequestOptions struct {
	// MaxTokens caps the generated token count.
	MaxTokens int
	// Model overrides the provider's configured model.
	Model string
	// Temperature controls sampling randomness; nil uses the provider
	// default.
	Temperature *float64
	// TopP selects nucleus sampling; nil uses the provider default.
	TopP *float64
	// System carries instructions separate from the user prompt.
	System string
	// Extra holds provider-specific options outside the standard set.
	Extra map[string]any
}

// ParseRequestOptions normalizes an options map into RequestOptions,
// applying defaults for missing or invalid entries and collecting unknown
// keys into Extra.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		MaxTokens: intOption(opts, "max_tokens", DefaultMaxTokens, func(v int) bool { return v > 0 }),
		Model:     stringOption(opts, "model", defaultModel),
		System:    stringOption(opts, "system", ""),
		Extra:     make(map[string]any),
	}

	if temp, ok := floatOption(opts, "temperature", isValidTemperature); ok {
		options.Temperature = &temp
	}
	if topP, ok := floatOption(opts, "top_p", isValidTopP); ok {
		options.TopP = &topP
	}

	for k, v := range opts {
		switch k {
		case "max_tokens", "model", "system", "temperature", "top_p":
			// Already handled above.
		default:
			options.Extra[k] = v
		}
	}
	return options
}

func intOption(opts map[string]any, key string, def int, valid func(int) bool) int {
	raw, ok := opts[key]
	if !ok {
		return def
	}
	var v int
	switch n := raw.(type) {
	case int:
		v = n
	case int64:
		v = int(n)
	case float64:
		v = int(n)
	default:
		return def
	}
	if valid != nil && !valid(v) {
		return def
	}
	return v
}

func floatOption(opts map[string]any, key string, valid func(float64) bool) (float64, bool) {
	raw, ok := opts[key]
	if !ok {
		return 0, false
	}
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	default:
		return 0, false
	}
	if valid != nil && !valid(v) {
		return 0, false
	}
	return v, true
}

func stringOption(opts map[string]any, key, def string) string {
	if s, ok := opts[key].(string); ok && s != "" {
		return s
	}
	return def
}

func isValidTemperature(v float64) bool { return v >= MinTemperature && v <= MaxTemperature }

func isValidTopP(v float64) bool { return v >= MinTopP && v <= MaxTopP }

// ValidateBaseURL checks that a base URL override is an http(s) URL with a
// host. Empty input is valid and selects the provider default.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return parsed.String(), nil
}

// ValidateTimeout clamps a request timeout into [MinTimeout, MaxTimeout].
// Zero or negative means use the system default and passes through as zero.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	if timeout < MinTimeout {
		return MinTimeout
	}
	if timeout > MaxTimeout {
		return MaxTimeout
	}
	return timeout
}

// ClampFloat64 restricts val to [min, max].
func ClampFloat64(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// ClampInt restricts val to [min, max].
func ClampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
