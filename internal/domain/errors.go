package domain

import (
	"errors"
	"fmt"
)

// Common domain errors raised while reading and grading submissions.
var (
	// ErrUnsupportedShape indicates a JSON document whose top-level shape is
	// neither a list of records nor one of the known wrapper mappings.
	ErrUnsupportedShape = errors.New("unsupported document shape")

	// ErrNotFound indicates a file or record that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ParseError reports a file that could not be decoded into the shape a
// component expected.
type ParseError struct {
	// Path is the file that failed to parse.
	Path string

	// Kind names what the file was expected to be ("dataset", "score", ...).
	Kind string

	// Err is the underlying decode or shape error.
	Err error
}

// Error implements the error interface for ParseError.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: kind=%s, path=%s, err=%v", e.Kind, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError creates a new ParseError with the given details.
func NewParseError(path, kind string, err error) *ParseError {
	return &ParseError{Path: path, Kind: kind, Err: err}
}

// ValidationError represents one or more failed checks against an entity.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError appends a failure message.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors reports whether any failure was recorded.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{Entity: entity, Errors: make([]string, 0)}
}
