package errors

import "fmt"

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	// Feed transport errors
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"

	// Authentication errors
	ErrorTypeAuthRequired ErrorType = "auth_required"
	ErrorTypeAuthFailed   ErrorType = "auth_failed"

	// Student resolution errors
	ErrorTypeAmbiguousStudent ErrorType = "ambiguous_student"
	ErrorTypeStudentNotFound  ErrorType = "student_not_found"

	// Local processing errors
	ErrorTypeStorage  ErrorType = "storage"
	ErrorTypeDownload ErrorType = "download"
	ErrorTypeTagging  ErrorType = "tagging"

	ErrorTypeUnknown ErrorType = "unknown"
)

// Error represents a feed or processing error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given type
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// Newf creates an error of the given type with a formatted message
func Newf(errorType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errorType, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given type wrapping an underlying cause
func Wrap(errorType ErrorType, message string, err error) *Error {
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	return &Error{Type: errorType, Message: message, Err: err}
}

// TypeOf returns the type of an error, or ErrorTypeUnknown for errors
// created outside this package
func TypeOf(err error) ErrorType {
	if e, ok := err.(*Error); ok {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err is an *Error of the given type
func IsType(err error, errorType ErrorType) bool {
	e, ok := err.(*Error)
	return ok && e.Type == errorType
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeServerError, ErrorTypeDownload:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}
