package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Client errors
	ErrCodeInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrCodeMissingSignature ErrorCode = "MISSING_SIGNATURE"
	ErrCodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"
	ErrCodeUnsupportedEvent ErrorCode = "UNSUPPORTED_EVENT"
	ErrCodePayloadTooLarge  ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrCodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	ErrCodeTooManyRequests  ErrorCode = "TOO_MANY_REQUESTS"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Server errors
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// AppError represents an application error with additional context
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"-"`
	Err        error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new application error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: getStatusCodeForError(code),
	}
}

// Wrap wraps an existing error with application context
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: getStatusCodeForError(code),
		Err:        err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: getStatusCodeForError(code),
		Err:        err,
	}
}

// getStatusCodeForError maps error codes to HTTP status codes.
// Every authentication problem is a 400, matching what webhook providers
// display in their delivery log.
func getStatusCodeForError(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidRequest, ErrCodeValidationFailed,
		ErrCodeMissingSignature, ErrCodeInvalidSignature, ErrCodeUnsupportedEvent:
		return http.StatusBadRequest
	case ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	case ErrCodeConfiguration, ErrCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors for convenience

// InvalidRequest creates an invalid request error
func InvalidRequest(message string) *AppError {
	return New(ErrCodeInvalidRequest, message)
}

// ValidationError creates a validation error
func ValidationError(message string) *AppError {
	return New(ErrCodeValidationFailed, message)
}

// MissingSignature creates an error for a request without a signature header
func MissingSignature(header string) *AppError {
	return New(ErrCodeMissingSignature, fmt.Sprintf("Request is missing %s header", header))
}

// InvalidSignature creates an error for a signature that failed verification
func InvalidSignature(err error) *AppError {
	return Wrap(err, ErrCodeInvalidSignature, "Invalid webhook signature")
}

// UnsupportedEvent creates an error for a missing or unknown event type
func UnsupportedEvent(event string) *AppError {
	if event == "" {
		return New(ErrCodeUnsupportedEvent, "Request is missing event type header")
	}
	return New(ErrCodeUnsupportedEvent, fmt.Sprintf("Unsupported event type: %s", event))
}

// ConfigurationError creates an error for a missing server-side setting.
// The message names the setting, never its value.
func ConfigurationError(setting string) *AppError {
	return New(ErrCodeConfiguration, fmt.Sprintf("%s has not been configured", setting))
}

// InternalError creates an internal server error
func InternalError(err error) *AppError {
	return Wrap(err, ErrCodeInternalError, "Internal server error")
}
