package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies a fetch or persistence failure
type ErrorType string

const (
	// ErrorTypeRateLimited means the provider rejected the call due to quota;
	// recoverable by switching provider or waiting out its cooldown.
	ErrorTypeRateLimited ErrorType = "rate_limited"
	// ErrorTypeTransient covers network failures, timeouts and 5xx responses;
	// recoverable by retrying with backoff.
	ErrorTypeTransient ErrorType = "transient"
	// ErrorTypePermanent covers malformed input, unsupported locations and
	// other failures that will not resolve by retrying.
	ErrorTypePermanent ErrorType = "permanent"
	// ErrorTypeCheckpointIO is a persistence failure for one checkpoint key.
	ErrorTypeCheckpointIO ErrorType = "checkpoint_io"
	ErrorTypeUnknown      ErrorType = "unknown"
)

// Error represents a classified error with optional HTTP status code
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// RateLimited builds a rate-limit error for a provider response
func RateLimited(format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypeRateLimited, Message: fmt.Sprintf(format, args...), Code: 429}
}

// Transient builds a retryable error
func Transient(format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypeTransient, Message: fmt.Sprintf(format, args...)}
}

// Permanent builds a non-retryable error
func Permanent(format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypePermanent, Message: fmt.Sprintf(format, args...)}
}

// CheckpointIO builds a checkpoint persistence failure
func CheckpointIO(format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypeCheckpointIO, Message: fmt.Sprintf(format, args...)}
}

// TypeOf extracts the classification from an error chain,
// defaulting to ErrorTypeUnknown for unclassified errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsRateLimited reports whether the error chain contains a rate-limit error
func IsRateLimited(err error) bool {
	return TypeOf(err) == ErrorTypeRateLimited
}

// IsRetryable checks if an error type should be retried on the same provider
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransient:
		return true
	case ErrorTypeRateLimited, ErrorTypePermanent, ErrorTypeCheckpointIO:
		return false
	default:
		return false
	}
}

// FromStatusCode classifies an HTTP status code from a provider API
func FromStatusCode(statusCode int, message string) *Error {
	switch {
	case statusCode == 429:
		return &Error{Type: ErrorTypeRateLimited, Message: message, Code: statusCode}
	case statusCode >= 500:
		return &Error{Type: ErrorTypeTransient, Message: message, Code: statusCode}
	case statusCode >= 400:
		return &Error{Type: ErrorTypePermanent, Message: message, Code: statusCode}
	default:
		return &Error{Type: ErrorTypeUnknown, Message: message, Code: statusCode}
	}
}
