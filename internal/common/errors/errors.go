// Package errors provides the portal's standardized error taxonomy.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeInvalidKind      ErrorCode = "INVALID_KIND"
	ErrCodeInvalidFormat    ErrorCode = "INVALID_FORMAT"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeForbidden        ErrorCode = "FORBIDDEN"

	ErrCodeRenderFailed     ErrorCode = "RENDER_FAILED"
	ErrCodeConversionFailed ErrorCode = "CONVERSION_FAILED"
	ErrCodeArtifactIOFailed ErrorCode = "ARTIFACT_IO_FAILED"

	ErrCodeNotifyFailed ErrorCode = "NOTIFY_FAILED"

	ErrCodeStoreFailed ErrorCode = "STORE_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a metadata key and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewResourceNotFoundError reports a missing application record.
func NewResourceNotFoundError(resourceType, resourceID string) *StandardError {
	return newError(ErrCodeResourceNotFound,
		fmt.Sprintf("%s not found", resourceType),
		fmt.Sprintf("resourceId: %s", resourceID),
		false, nil)
}

// NewInvalidKindError reports an unknown resource kind.
func NewInvalidKindError(kind string) *StandardError {
	return newError(ErrCodeInvalidKind, "Unsupported resource kind", fmt.Sprintf("kind: %s", kind), false, nil)
}

// NewInvalidFormatError reports an unsupported artifact format.
func NewInvalidFormatError(format string) *StandardError {
	return newError(ErrCodeInvalidFormat, "Unsupported download format", fmt.Sprintf("format: %s (use pdf or jpg)", format), false, nil)
}

// NewInvalidInputError reports a malformed request payload.
func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid request payload", details, false, nil)
}

// NewForbiddenError reports a caller acting on a record it does not own.
func NewForbiddenError(details string) *StandardError {
	return newError(ErrCodeForbidden, "Access to resource denied", details, false, nil)
}

// NewRenderFailedError wraps a PDF generation failure.
func NewRenderFailedError(resourceID string, err error) *StandardError {
	return newError(ErrCodeRenderFailed, "Acknowledgment PDF generation failed",
		fmt.Sprintf("resourceId: %s, error: %v", resourceID, err), true, err)
}

// NewConversionFailedError wraps an exhausted conversion chain. The
// message tells the caller to fall back to the PDF download.
func NewConversionFailedError(resourceID string, err error) *StandardError {
	return newError(ErrCodeConversionFailed, "JPEG conversion failed, please download the PDF instead",
		fmt.Sprintf("resourceId: %s, error: %v", resourceID, err), true, err)
}

// NewArtifactIOError wraps filesystem errors in the artifact directory.
func NewArtifactIOError(path string, err error) *StandardError {
	return newError(ErrCodeArtifactIOFailed, "Artifact file operation failed",
		fmt.Sprintf("path: %s, error: %v", path, err), true, err)
}

// NewNotifyFailedError wraps a delivery failure. Never surfaced to HTTP callers.
func NewNotifyFailedError(userID string, err error) *StandardError {
	return newError(ErrCodeNotifyFailed, "Notification delivery failed",
		fmt.Sprintf("userId: %s, error: %v", userID, err), false, err)
}

// NewStoreFailedError wraps a persistence failure.
func NewStoreFailedError(op string, err error) *StandardError {
	return newError(ErrCodeStoreFailed, "Persistence operation failed",
		fmt.Sprintf("op: %s, error: %v", op, err), true, err)
}

// NewInternalError normalizes an unexpected error.
func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// ==========================
// 3. Inspection helpers
// ==========================

// As extracts a *StandardError from err's chain.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the code of err, or ErrCodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := As(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// Normalize always returns a StandardError.
func Normalize(err error) *StandardError {
	if stdErr, ok := As(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

// ==========================
// 4. HTTP mapping
// ==========================

// HTTPStatus maps an error code to the status code surfaced to HTTP callers.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeResourceNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidKind, ErrCodeInvalidFormat, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeConversionFailed:
		return http.StatusUnprocessableEntity
	case ErrCodeStoreFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "NOT_FOUND"), strings.Contains(codeStr, "INVALID"), code == ErrCodeForbidden:
		return "CLIENT"
	case strings.Contains(codeStr, "RENDER"), strings.Contains(codeStr, "CONVERSION"), strings.Contains(codeStr, "ARTIFACT"):
		return "ARTIFACT"
	case strings.Contains(codeStr, "NOTIFY"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "STORE"):
		return "DATABASE"
	default:
		return "OTHER"
	}
}
