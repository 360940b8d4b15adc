package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies application errors into the stable taxonomy exposed to clients.
type Kind string

const (
	KindValidation       Kind = "ValidationError"
	KindAuthentication   Kind = "AuthenticationError"
	KindAuthorization    Kind = "AuthorizationError"
	KindNotFound         Kind = "NotFoundError"
	KindConflict         Kind = "ConflictError"
	KindRateLimit        Kind = "RateLimitError"
	KindUpstream         Kind = "UpstreamError"
	KindInvalidOperation Kind = "InvalidOperation"
	KindInternal         Kind = "InternalError"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Kind       Kind   `json:"kind"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Details    []any  `json:"details,omitempty"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError carrying a more specific message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// WithDetails returns a copy of the AppError carrying structured detail entries.
func (e *AppError) WithDetails(details ...any) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Details = append(append([]any(nil), e.Details...), details...)
	return &cpy
}

// Common errors exposed to the rest of the application.
var (
	ErrUnauthorized = &AppError{
		Kind:       KindAuthentication,
		Code:       "AUTH_REQUIRED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrTokenInvalid = &AppError{
		Kind:       KindAuthentication,
		Code:       "TOKEN_INVALID",
		Message:    "Invalid or expired token",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Kind:       KindAuthorization,
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Kind:       KindNotFound,
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrValidation = &AppError{
		Kind:       KindValidation,
		Code:       "VALIDATION_FAILED",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrConflict = &AppError{
		Kind:       KindConflict,
		Code:       "CONFLICT",
		Message:    "Resource already exists",
		StatusCode: http.StatusConflict,
	}

	ErrRateLimit = &AppError{
		Kind:       KindRateLimit,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests, please slow down",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrInvalidOperation = &AppError{
		Kind:       KindInvalidOperation,
		Code:       "INVALID_OPERATION",
		Message:    "Operation not permitted by domain rules",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrUpstream = &AppError{
		Kind:       KindUpstream,
		Code:       "UPSTREAM_UNAVAILABLE",
		Message:    "Upstream data store unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}

	ErrInternalServer = &AppError{
		Kind:       KindInternal,
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(kind Kind, code, message string, statusCode int) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Kind:       KindInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewValidation wraps validation failures with a helpful message.
func NewValidation(message string) *AppError {
	return ErrValidation.WithMessage(message)
}

// IsKind reports whether the error is an AppError of the supplied kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Kind == kind
}
