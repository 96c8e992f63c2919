package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

const (
	// ErrConfiguration marks invalid construction-time parameters
	// (chunking bounds, missing embedding provider, bad table names).
	// Configuration errors are fatal: the component must not be used.
	ErrConfiguration ErrorCode = "CONFIGURATION"

	// ErrDimensionMismatch marks a vector whose dimensionality differs
	// from the one fixed at index creation.
	ErrDimensionMismatch ErrorCode = "DIMENSION_MISMATCH"

	// ErrEmbeddingProvider marks an upstream failure generating a vector.
	ErrEmbeddingProvider ErrorCode = "EMBEDDING_PROVIDER"

	// ErrStorage marks a backend read/write failure.
	ErrStorage ErrorCode = "STORAGE"

	// ErrNotFound marks an operation on an unknown session, document or
	// entry id.
	ErrNotFound ErrorCode = "NOT_FOUND"

	// ErrPartialIngestion marks a document whose chunks were persisted
	// but not all indexed.
	ErrPartialIngestion ErrorCode = "PARTIAL_INGESTION"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Provider  string    `json:"provider,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// IsCode reports whether err (or any error in its chain) is a *Error
// carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
