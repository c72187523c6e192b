package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/ahrav/go-crossval/internal/ports"
)

// Common errors returned by the client and providers.
var (
	// ErrEmptyAPIKey indicates that an API key was required but not provided.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
	// ErrEmptyResponse indicates that the provider returned no text.
	ErrEmptyResponse = errors.New("empty response from API")
	// ErrInvalidModel indicates a missing or rejected model identifier.
	ErrInvalidModel = errors.New("invalid or inaccessible model")
	// ErrUnknownProvider indicates that no factory is registered under the name.
	ErrUnknownProvider = errors.New("unknown provider")
)

// ErrorType classifies a provider failure.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeAuthentication
	ErrorTypeRateLimit
	ErrorTypeBadRequest
	ErrorTypeNotFound
	ErrorTypeServerError
	ErrorTypeContentPolicy
	ErrorTypeNetwork
	ErrorTypeTimeout
)

func (t ErrorType) String() string {
	switch t {
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
	default:
		return "unknown"
	}
}

// ProviderError normalizes a provider-specific failure.
type ProviderError struct {
	Type         ErrorType
	Provider     string
	StatusCode   int
	Message      string
	WrappedError error
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider string, typ ErrorType, status int, msg string, err error) *ProviderError {
	return &ProviderError{Type: typ, Provider: provider, StatusCode: status, Message: msg, WrappedError: err}
}

func (e *ProviderError) Error() string {
	base := e.Provider + " error"
	if e.StatusCode > 0 {
		base += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	base += " [" + e.Type.String() + "]"
	if e.Message != "" {
		base += ": " + e.Message
	}
	return base
}

// Unwrap exposes the provider's original error.
func (e *ProviderError) Unwrap() error { return e.WrappedError }

// Is lets callers match provider failures against the shared port sentinels.
func (e *ProviderError) Is(target error) bool {
	switch e.Type {
	case ErrorTypeRateLimit:
		return target == ports.ErrRateLimited
	case ErrorTypeServerError:
		return target == ports.ErrServiceUnavailable
	case ErrorTypeTimeout:
		return target == ports.ErrTimeout
	}
	return false
}

// IsRetryable reports whether the request may succeed on another attempt.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	}
	return false
}

// IsRetryable reports whether err is a transient provider failure. Errors
// that are not ProviderErrors are treated as transient unless they come
// from a cancelled context or a spent budget.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrBudgetExceeded) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	return true
}

// ErrorClassifier maps transport failures of one provider onto ErrorTypes.
type ErrorClassifier struct {
	Provider string
}

// ClassifyHTTPError classifies an HTTP status returned by the provider.
func (c ErrorClassifier) ClassifyHTTPError(status int, msg string, err error) *ProviderError {
	typ := ErrorTypeUnknown
	switch {
	case status == 401 || status == 403:
		typ = ErrorTypeAuthentication
	case status == 429:
		typ = ErrorTypeRateLimit
	case status == 400:
		typ = ErrorTypeBadRequest
	case status == 404:
		typ = ErrorTypeNotFound
	case status >= 500:
		typ = ErrorTypeServerError
	}
	return NewProviderError(c.Provider, typ, status, msg, err)
}

// ClassifyError classifies failures that carry no HTTP status.
func (c ErrorClassifier) ClassifyError(err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(c.Provider, ErrorTypeTimeout, 0, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(c.Provider, ErrorTypeUnknown, 0, "request cancelled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewProviderError(c.Provider, ErrorTypeTimeout, 0, "network timeout", err)
		}
		return NewProviderError(c.Provider, ErrorTypeNetwork, 0, "network error", err)
	}
	return NewProviderError(c.Provider, ErrorTypeUnknown, 0, "request failed", err)
}
