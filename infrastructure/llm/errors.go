package llm

import (
	"context"
	"errors"
	"fmt"
)

// Common transport errors.
var (
	// ErrEmptyAPIKey indicates a required API key was not provided.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")

	// ErrEmptyResponse indicates the provider returned no content.
	ErrEmptyResponse = errors.New("empty response from API")

	// ErrNoResponseChoice indicates the provider response held no choices.
	ErrNoResponseChoice = errors.New("no response choices returned")
)

// ErrorType categorizes provider failures for standardized handling, in
// particular for deciding retryability.
type ErrorType int

const (
	// ErrorTypeUnknown is an error of undetermined category.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeAuthentication covers invalid or rejected credentials.
	ErrorTypeAuthentication
	// ErrorTypeRateLimit indicates an exceeded provider rate limit.
	ErrorTypeRateLimit
	// ErrorTypeBadRequest covers malformed requests or bad parameters.
	ErrorTypeBadRequest
	// ErrorTypeNotFound covers missing resources such as unknown models.
	ErrorTypeNotFound
	// ErrorTypeServerError covers provider-side failures.
	ErrorTypeServerError
	// ErrorTypeContentPolicy indicates the request was blocked by safety
	// filters.
	ErrorTypeContentPolicy
	// ErrorTypeNetwork covers client-side network problems and
	// cancellation.
	ErrorTypeNetwork
	// ErrorTypeTimeout indicates the request exceeded its deadline.
	ErrorTypeTimeout
	// ErrorTypeMalformedReply indicates the provider answered but the
	// reply could not be parsed into the expected judgment schema, or
	// the model refused to judge. Not retryable at the transport level;
	// the judge layer decides how to treat it.
	ErrorTypeMalformedReply
)

// ProviderError is a provider failure normalized into a common shape with a
// classified type and metadata.
type ProviderError struct {
	// Type classifies the error.
	Type ErrorType
	// Provider names the LLM provider that produced it.
	Provider string
	// StatusCode holds the HTTP status when applicable.
	StatusCode int
	// Message is the provider's user-facing message.
	Message string
	// WrappedError is the original error for chaining.
	WrappedError error
}

// NewProviderError builds a ProviderError from provider-specific details.
func NewProviderError(provider string, errType ErrorType, statusCode int, message string, wrapped error) *ProviderError {
	return &ProviderError{
		Type:         errType,
		Provider:     provider,
		StatusCode:   statusCode,
		Message:      message,
		WrappedError: wrapped,
	}
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	out := fmt.Sprintf("%s error", e.Provider)
	if e.StatusCode > 0 {
		out += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if s := e.typeString(); s != "" {
		out += fmt.Sprintf(" [%s]", s)
	}
	if e.Message != "" {
		out += ": " + e.Message
	}
	if e.WrappedError != nil {
		out += fmt.Sprintf(": %v", e.WrappedError)
	}
	return out
}

// Unwrap returns the wrapped error for errors.Is/As inspection.
func (e *ProviderError) Unwrap() error { return e.WrappedError }

// IsRetryable reports whether a failed request should be retried. Rate
// limits, server errors, network faults, and timeouts are transient; the
// rest are not.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

func (e *ProviderError) typeString() string {
	switch e.Type {
	case ErrorTypeAuthentication:
		return "authentication"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeBadRequest:
		return "bad_request"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeServerError:
		return "server_error"
	case ErrorTypeContentPolicy:
		return "content_policy"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeMalformedReply:
		return "malformed_reply"
	default:
		return ""
	}
}

// ErrorClassifier normalizes provider-specific failures into ProviderError
// values using HTTP status codes and context state.
type ErrorClassifier struct {
	// Provider names the provider this classifier labels errors with.
	Provider string
}

// ClassifyHTTPError maps an HTTP status code onto a ProviderError.
func (ec *ErrorClassifier) ClassifyHTTPError(statusCode int, message string, err error) *ProviderError {
	var errType ErrorType
	switch {
	case statusCode == 401 || statusCode == 403:
		errType = ErrorTypeAuthentication
		message = fmt.Sprintf("%s authentication failed", ec.Provider)
	case statusCode == 429:
		errType = ErrorTypeRateLimit
		message = fmt.Sprintf("%s rate limit exceeded", ec.Provider)
	case statusCode == 404:
		errType = ErrorTypeNotFound
	case statusCode >= 500:
		errType = ErrorTypeServerError
	case statusCode >= 400:
		errType = ErrorTypeBadRequest
	default:
		errType = ErrorTypeUnknown
	}
	return NewProviderError(ec.Provider, errType, statusCode, message, err)
}

// ClassifyContextError maps context cancellation and deadline errors onto a
// ProviderError.
func (ec *ErrorClassifier) ClassifyContextError(err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(ec.Provider, ErrorTypeTimeout, 0, "context deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(ec.Provider, ErrorTypeNetwork, 0, "request canceled", err)
	default:
		return NewProviderError(ec.Provider, ErrorTypeUnknown, 0, "", err)
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
