package errors

import (
	"errors"
	"fmt"
)

// RetrievalError is the structured error type for covrag.
// It provides rich context for error handling, logging, and user presentation.
type RetrievalError struct {
	// Code is the unique error code (e.g., "ERR_201_STORE_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Store, External, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *RetrievalError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RetrievalError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with RetrievalError.
func (e *RetrievalError) Is(target error) bool {
	if t, ok := target.(*RetrievalError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *RetrievalError) WithDetail(key, value string) *RetrievalError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new RetrievalError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RetrievalError {
	return &RetrievalError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RetrievalError from an existing error.
// The error's message becomes the RetrievalError message.
func Wrap(code string, err error) *RetrievalError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ValidationError creates a per-document validation error.
// Validation failures are reported per item and never abort a batch.
func ValidationError(message string, cause error) *RetrievalError {
	return New(ErrCodeInvalidDocument, message, cause)
}

// StoreUnavailable creates a transient store error.
// Callers may retry or serve from a stale lexical index snapshot.
func StoreUnavailable(message string, cause error) *RetrievalError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// PartialRetrievalFailure indicates one or more method/variant searches
// failed while at least one succeeded. Logged; fusion proceeds on survivors.
func PartialRetrievalFailure(message string, cause error) *RetrievalError {
	return New(ErrCodePartialRetrieval, message, cause)
}

// TotalRetrievalFailure indicates every method/variant search failed.
// Surfaced to the caller; never silently returned as an empty result set.
func TotalRetrievalFailure(message string, cause error) *RetrievalError {
	return New(ErrCodeTotalRetrieval, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain contains a RetrievalError with the
// Retryable flag set.
func IsRetryable(err error) bool {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a RetrievalError.
// Returns empty string if the chain has none.
func GetCode(err error) string {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsTotalFailure reports whether the error chain contains a total
// retrieval failure.
func IsTotalFailure(err error) bool {
	return GetCode(err) == ErrCodeTotalRetrieval
}
