// Package errors provides the structured filesystem error taxonomy used by every s3vfs operation.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode is one of the filesystem error kinds reported to callers.
type ErrorCode string

const (
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"
	ErrCodeAccessDenied         ErrorCode = "ACCESS_DENIED"
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeTimeout              ErrorCode = "TIMEOUT"
	ErrCodeNetworkUnreachable   ErrorCode = "NETWORK_UNREACHABLE"
	ErrCodeCancelled            ErrorCode = "CANCELLED"
	ErrCodeAlreadyExists        ErrorCode = "ALREADY_EXISTS"
	ErrCodeInvalidArgument      ErrorCode = "INVALID_ARGUMENT"
	ErrCodeNotSupported         ErrorCode = "NOT_SUPPORTED"
	ErrCodeDataCorrupt          ErrorCode = "DATA_CORRUPT"
	ErrCodeUnknown              ErrorCode = "UNKNOWN"
)

// ErrorCategory groups codes for logging and metrics.
type ErrorCategory string

const (
	CategoryFilesystem ErrorCategory = "filesystem"
	CategoryAuth       ErrorCategory = "auth"
	CategoryConnection ErrorCategory = "connection"
	CategoryOperation  ErrorCategory = "operation"
	CategoryData       ErrorCategory = "data"
	CategoryInternal   ErrorCategory = "internal"
)

// VFSError represents a structured error with context and metadata.
type VFSError struct {
	Code     ErrorCode     `json:"code"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`

	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	Retryable  bool `json:"retryable"`
	HTTPStatus int  `json:"http_status,omitempty"`
}

// Error implements the error interface.
func (e *VFSError) Error() string {
	var msg string
	switch {
	case e.Component != "" && e.Operation != "":
		msg = fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
	case e.Component != "":
		msg = fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	default:
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *VFSError) Unwrap() error {
	return e.Cause
}

// Is matches another VFSError by code.
func (e *VFSError) Is(target error) bool {
	if t, ok := target.(*VFSError); ok {
		return e.Code == t.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *VFSError) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if len(e.Context) > 0 {
		ctx, _ := json.Marshal(e.Context)
		parts = append(parts, fmt.Sprintf("Context=%s", ctx))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("VFSError{%s}", strings.Join(parts, ", "))
}

// NewError creates a new error with the defaults for code.
func NewError(code ErrorCode, message string) *VFSError {
	return &VFSError{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Timestamp:  time.Now(),
		Retryable:  IsRetryableByDefault(code),
		HTTPStatus: GetDefaultHTTPStatus(code),
	}
}

// Newf is NewError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *VFSError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new error with code carrying cause.
func Wrap(cause error, code ErrorCode, message string) *VFSError {
	return NewError(code, message).WithCause(cause)
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound        = NewError(ErrCodeNotFound, "not found")
	ErrAccessDenied    = NewError(ErrCodeAccessDenied, "access denied")
	ErrCancelled       = NewError(ErrCodeCancelled, "operation cancelled")
	ErrAlreadyExists   = NewError(ErrCodeAlreadyExists, "already exists")
	ErrInvalidArgument = NewError(ErrCodeInvalidArgument, "invalid argument")
	ErrNotSupported    = NewError(ErrCodeNotSupported, "operation not supported")
	ErrDataCorrupt     = NewError(ErrCodeDataCorrupt, "data corrupt")
)

// CodeOf returns the code of the first VFSError in err's chain, or ErrCodeUnknown.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var vfsErr *VFSError
	if stderrors.As(err, &vfsErr) {
		return vfsErr.Code
	}
	return ErrCodeUnknown
}

// Is is errors.Is from the standard library.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// HasCode reports whether err carries code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeNotFound, ErrCodeAlreadyExists:
		return CategoryFilesystem
	case ErrCodeAccessDenied, ErrCodeAuthenticationFailed:
		return CategoryAuth
	case ErrCodeTimeout, ErrCodeNetworkUnreachable:
		return CategoryConnection
	case ErrCodeCancelled, ErrCodeInvalidArgument, ErrCodeNotSupported:
		return CategoryOperation
	case ErrCodeDataCorrupt:
		return CategoryData
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault reports whether a caller-level layer may retry code.
func IsRetryableByDefault(code ErrorCode) bool {
	return code == ErrCodeTimeout || code == ErrCodeNetworkUnreachable
}

// GetDefaultHTTPStatus returns the default HTTP status for an error code.
func GetDefaultHTTPStatus(code ErrorCode) int {
	statusMap := map[ErrorCode]int{
		ErrCodeInvalidArgument:      400,
		ErrCodeDataCorrupt:          400,
		ErrCodeAuthenticationFailed: 401,
		ErrCodeAccessDenied:         403,
		ErrCodeNotFound:             404,
		ErrCodeAlreadyExists:        409,
		ErrCodeCancelled:            499,
		ErrCodeNotSupported:         501,
		ErrCodeNetworkUnreachable:   503,
		ErrCodeTimeout:              504,
	}
	if status, ok := statusMap[code]; ok {
		return status
	}
	return 500
}

// WithContext adds contextual information to an error
func (e *VFSError) WithContext(key, value string) *VFSError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *VFSError) WithComponent(component string) *VFSError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *VFSError) WithOperation(operation string) *VFSError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *VFSError) WithCause(cause error) *VFSError {
	e.Cause = cause
	return e
}

// UserFacingMessage returns a short message suitable for a host UI.
func (e *VFSError) UserFacingMessage() string {
	switch e.Code {
	case ErrCodeNotFound:
		return "The file or directory does not exist."
	case ErrCodeAccessDenied:
		return "Access to the item was denied."
	case ErrCodeAuthenticationFailed:
		return "The storage service rejected the supplied credentials."
	case ErrCodeTimeout:
		return "The storage service did not respond in time."
	case ErrCodeNetworkUnreachable:
		return "The storage endpoint could not be reached."
	case ErrCodeCancelled:
		return "The operation was cancelled."
	case ErrCodeAlreadyExists:
		return "An item with that name already exists."
	case ErrCodeNotSupported:
		return "This operation is not supported here."
	default:
		return e.Message
	}
}
