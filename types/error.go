package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Request validation codes
const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrUnsupportedModel ErrorCode = "UNSUPPORTED_MODEL"
	ErrNotReady         ErrorCode = "NOT_READY"
)

// Access codes
const (
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrRateLimited  ErrorCode = "RATE_LIMITED"
)

// Upstream codes
const (
	ErrUpstreamError   ErrorCode = "UPSTREAM_ERROR"
	ErrDownloadError   ErrorCode = "DOWNLOAD_ERROR"
	ErrNoImageReturned ErrorCode = "NO_IMAGE_RETURNED"
	ErrEmptyCompletion ErrorCode = "EMPTY_COMPLETION"
)

// Local codes
const (
	ErrConfigMissing    ErrorCode = "CONFIG_MISSING"
	ErrPersistenceError ErrorCode = "PERSISTENCE_ERROR"
	ErrCancelled        ErrorCode = "CANCELLED"
	ErrInternalError    ErrorCode = "INTERNAL_ERROR"
)

// Kind groups error codes into the families operators reason about.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindUpstream      Kind = "upstream"
	KindNormalization Kind = "normalization"
	KindPersistence   Kind = "persistence"
	KindCancelled     Kind = "cancelled"
	KindInternal      Kind = "internal"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`

	// UpstreamStatus and UpstreamBody carry what the remote service answered.
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	UpstreamBody   string `json:"upstream_body,omitempty"`

	// Raw keeps an unparseable success payload for diagnostics.
	Raw json.RawMessage `json:"raw,omitempty"`

	Cause error `json:"-"`
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

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithUpstream records the remote status and body text.
func (e *Error) WithUpstream(status int, body string) *Error {
	e.UpstreamStatus = status
	e.UpstreamBody = body
	return e
}

// WithRaw attaches the raw payload that could not be interpreted.
func (e *Error) WithRaw(raw []byte) *Error {
	e.Raw = append(json.RawMessage(nil), raw...)
	return e
}

// AsError extracts an *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// KindOf classifies an error. Errors without a code are internal.
func KindOf(err error) Kind {
	switch GetErrorCode(err) {
	case ErrInvalidRequest, ErrUnsupportedModel, ErrNotReady, ErrUnauthorized, ErrRateLimited:
		return KindValidation
	case ErrUpstreamError, ErrDownloadError:
		return KindUpstream
	case ErrNoImageReturned, ErrEmptyCompletion:
		return KindNormalization
	case ErrPersistenceError:
		return KindPersistence
	case ErrCancelled:
		return KindCancelled
	default:
		return KindInternal
	}
}

// StatusFor returns the HTTP status used when err reaches an endpoint.
func StatusFor(err error) int {
	e, ok := AsError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	switch e.Code {
	case ErrInvalidRequest, ErrUnsupportedModel, ErrNotReady:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrUpstreamError, ErrDownloadError, ErrNoImageReturned, ErrEmptyCompletion:
		return http.StatusBadGateway
	case ErrCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// NewInvalidRequestError creates a validation error.
func NewInvalidRequestError(message string) *Error {
	return NewError(ErrInvalidRequest, message).WithHTTPStatus(http.StatusBadRequest)
}

// NewCancelledError wraps a context error as a cancellation outcome.
func NewCancelledError(cause error) *Error {
	return NewError(ErrCancelled, "operation cancelled").WithCause(cause)
}
