package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeStorage     ErrorType = "storage"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents an API error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// New creates a typed error
func New(errorType ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errorType,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	}
}

// TypeOf returns the type of the first *Error in err's chain, or
// ErrorTypeUnknown when there is none.
func TypeOf(err error) ErrorType {
	var apiErr *Error
	if stderrors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ErrorTypeUnknown
}

// IsAuth reports whether err was caused by rejected credentials.
// Auth errors are fatal: stale credentials never heal on their own.
func IsAuth(err error) bool {
	if err == nil {
		return false
	}
	return TypeOf(err) == ErrorTypeAuth
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeServerError:
		return true
	case ErrorTypeRateLimit:
		// a 429 ends the user's turn; the next poll cycle is the retry
		return false
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing, ErrorTypeStorage:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return false
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
