package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

const (
	ErrCodeTransport       ErrorCode = "TRANSPORT_ERROR"
	ErrCodeUnsupportedOp   ErrorCode = "UNSUPPORTED_OPERATION"
	ErrCodeAuthResolution  ErrorCode = "AUTH_RESOLUTION"
	ErrCodeUnknownProvider ErrorCode = "UNKNOWN_PROVIDER"
	ErrCodeInvalidActivity ErrorCode = "INVALID_ACTIVITY"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// Activity validation errors.
var (
	ErrNilActivity         = errors.New("activity: nil activity")
	ErrMissingType         = errors.New("activity: missing type")
	ErrMissingConversation = errors.New("activity: missing conversation id")
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
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

// GetErrorCode extracts the error code from an error, unwrapping as needed.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
