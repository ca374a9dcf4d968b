package errors

import (
	"context"
	"errors"
	"fmt"
)

// Error is the structured error type for the discovery engine. It carries a
// stable code and kind for client-side discrimination, plus optional detail
// pairs for logging.
type Error struct {
	// Code is the unique error code (e.g., "ERR_402_QUERY_EMPTY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Kind is the stable discriminator from spec'd error semantics.
	Kind Kind

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
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given code and message.
// Kind, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Kind:      kindFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error, keeping its message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// InvalidInput creates a validation error surfaced to the caller.
func InvalidInput(message string) *Error {
	return New(ErrCodeInvalidInput, message, nil)
}

// Unavailable creates a backend-unreachable error. Unavailable errors are
// retryable and allow the orchestrator to serve a degraded response.
func Unavailable(message string, cause error) *Error {
	return New(ErrCodeRepoUnavailable, message, cause)
}

// NotFound creates a not-found error for the given entity and id.
func NotFound(code string, entity string, id int64) *Error {
	return New(code, fmt.Sprintf("%s %d not found", entity, id), nil).
		WithDetail("id", fmt.Sprintf("%d", id))
}

// Internal creates an internal error.
func Internal(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// FromContext converts a context error into the matching typed error.
// Returns nil if ctx.Err() is nil.
func FromContext(ctx context.Context) *Error {
	switch ctx.Err() {
	case context.Canceled:
		return New(ErrCodeSearchCancelled, "search cancelled", ctx.Err())
	case context.DeadlineExceeded:
		return New(ErrCodeSearchTimeout, "search deadline exceeded", ctx.Err())
	default:
		return nil
	}
}

// KindOf extracts the kind from any error. Plain errors report KindInternal;
// context errors map to Cancelled/Timeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// CodeOf extracts the code from an error, or empty for plain errors.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
