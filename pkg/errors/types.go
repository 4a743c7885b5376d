package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured error code
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Resource errors
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Per-file processing errors
	ErrCodeSourceUnreadable ErrorCode = "SOURCE_UNREADABLE"
	ErrCodeTranscode        ErrorCode = "TRANSCODE_FAILED"
	ErrCodeVerify           ErrorCode = "VERIFY_FAILED"
	ErrCodeWrite            ErrorCode = "WRITE_FAILED"
	ErrCodeDelete           ErrorCode = "DELETE_FAILED"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// AppError represents a structured application error
type AppError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(cause error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(cause error, code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Common error constructors

// NotFound creates a not found error
func NotFound(resource string, id interface{}) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithDetail("resource", resource).
		WithDetail("id", id)
}

// ConfigError creates a configuration error
func ConfigError(key string, reason string) *AppError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("configuration error for '%s': %s", key, reason)).
		WithDetail("key", key).
		WithDetail("reason", reason)
}

// SourceError reports an unreadable or corrupt source file
func SourceError(path string, cause error) *AppError {
	return Wrap(cause, ErrCodeSourceUnreadable, "source file is unreadable").
		WithDetail("path", path)
}

// TranscodeError reports a failure of the transcoding engine
func TranscodeError(path string, cause error) *AppError {
	return Wrap(cause, ErrCodeTranscode, "transcode failed").
		WithDetail("path", path)
}

// VerifyError reports an output that does not match its source
func VerifyError(path string, reason string) *AppError {
	return New(ErrCodeVerify, fmt.Sprintf("output verification failed: %s", reason)).
		WithDetail("path", path).
		WithDetail("reason", reason)
}

// WriteError reports a filesystem write failure
func WriteError(path string, cause error) *AppError {
	return Wrap(cause, ErrCodeWrite, "write failed").
		WithDetail("path", path)
}

// DeleteError reports a filesystem delete failure
func DeleteError(path string, cause error) *AppError {
	return Wrap(cause, ErrCodeDelete, "delete failed").
		WithDetail("path", path)
}

// Is checks if an error, or any error it wraps, is an AppError with the given code
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}
