package ports

import (
	"errors"
	"fmt"
)

// Failure classes reported by the judge client and the config loader.
var (
	// ErrRateLimited means the model provider refused the call for rate.
	ErrRateLimited = errors.New("rate limited")
	// ErrServiceUnavailable means the provider could not serve the call.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrTimeout means a judge call ran past its deadline.
	ErrTimeout = errors.New("operation timed out")
	// ErrInvalidResponse marks a judge reply or input file whose content
	// could not be read as the expected shape.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrConfigNotFound means the run configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration not found")
)

// LLMError is a failed judge call, tagged with the model that served it
// and the judging step that issued it.
type LLMError struct {
	Model string
	// Operation names the step, e.g. "judge" or "complete".
	Operation string
	Err       error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("judge call failed (model %s, %s): %v", e.Model, e.Operation, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// IsRetryable is true for rate limits, outages and timeouts. A malformed
// verdict is not retried; the judge skips that case.
func (e *LLMError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewLLMError returns an LLMError for a call to model made by operation.
func NewLLMError(model, operation string, err error) *LLMError {
	return &LLMError{Model: model, Operation: operation, Err: err}
}

// ConfigError points at the configuration field that failed to load or
// validate. ConfigKey is the validator namespace, e.g.
// "Config.Judge.APIKey".
type ConfigError struct {
	ConfigKey string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %v", e.ConfigKey, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps err as a failure of key.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{ConfigKey: key, Err: err}
}
