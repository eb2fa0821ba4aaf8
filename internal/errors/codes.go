package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a failure class surfaced to CLI and API callers.
type ErrorCode string

const (
	// ErrCodeStorageFailure indicates the durable store could not be read or written.
	ErrCodeStorageFailure ErrorCode = "STORAGE_FAILURE"
	// ErrCodeParseFailure indicates a payload or cached entry could not be decoded.
	ErrCodeParseFailure ErrorCode = "PARSE_FAILURE"
	// ErrCodeInvalidDateRange indicates the target date precedes the start date.
	ErrCodeInvalidDateRange ErrorCode = "INVALID_DATE_RANGE"
	// ErrCodeUnmatchedSubject indicates a schedule label has no attendance code.
	ErrCodeUnmatchedSubject ErrorCode = "UNMATCHED_SUBJECT"
	// ErrCodeUnauthorized indicates missing or rejected credentials.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeContextCanceled indicates the operation was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeServiceUnavailable indicates the portal could not be reached.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNotFound indicates the requested dataset is not cached.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// AppError is a coded error carrying an optional cause and context.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// HTTPStatus maps the code to a response status for the local API.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeInvalidArgument, ErrCodeInvalidDateRange:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeContextCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// Convenience constructors for common error types.

func StorageFailure(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeStorageFailure, Message: msg, Cause: cause}
}

func ParseFailure(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeParseFailure, Message: msg, Cause: cause}
}

func InvalidDateRange(msg string) *AppError {
	return &AppError{Code: ErrCodeInvalidDateRange, Message: msg}
}

func UnmatchedSubject(label string) *AppError {
	return &AppError{
		Code:    ErrCodeUnmatchedSubject,
		Message: fmt.Sprintf("no attendance code for subject %q", label),
	}
}

func Unauthorized(msg string) *AppError {
	return &AppError{Code: ErrCodeUnauthorized, Message: msg}
}

func InvalidArgument(msg string) *AppError {
	return &AppError{Code: ErrCodeInvalidArgument, Message: msg}
}

func ServiceUnavailable(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeServiceUnavailable, Message: msg, Cause: cause}
}

func NotFound(msg string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: msg}
}

// ContextCanceled creates a context canceled error.
func ContextCanceled(cause error) *AppError {
	return &AppError{Code: ErrCodeContextCanceled, Message: "operation canceled", Cause: cause}
}

// Timeout creates a timeout error.
func Timeout(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeTimeout, Message: msg, Cause: cause}
}

// Wrap wraps an existing error with a code.
func Wrap(cause error, code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: cause}
}

// FromContext converts context errors into coded errors, and returns nil
// for anything else.
func FromContext(err error) *AppError {
	switch {
	case stderrors.Is(err, context.Canceled):
		return ContextCanceled(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return Timeout("deadline exceeded", err)
	default:
		return nil
	}
}

// IsCode checks whether err or anything it wraps carries code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an AppError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return defaultCode
}
