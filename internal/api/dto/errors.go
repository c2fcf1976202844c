package dto

import (
	"errors"
	"net/http"

	"github.com/eshaffer321/ordersync-backend/internal/domain/errs"
)

// ErrorResponse represents a structured error response.
// All error responses from the API use this format for consistency.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// Common error codes
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeInternalError = "internal_error"
	ErrCodeValidation    = "validation_error"
	ErrCodeAuth          = "auth_error"
	ErrCodeConflict      = "conflict"
	ErrCodeRateLimited   = "rate_limited"
	ErrCodeUpstream      = "upstream_error"
	ErrCodePersistence   = "persistence_error"
)

// NewErrorResponse creates a failure body with the given code and message.
func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Success: false, Error: message, Code: code}
}

// NotFoundError creates a not found error response.
func NotFoundError(resource string) ErrorResponse {
	return NewErrorResponse(ErrCodeNotFound, resource+" not found")
}

// BadRequestError creates a bad request error response.
func BadRequestError(message string) ErrorResponse {
	return NewErrorResponse(ErrCodeBadRequest, message)
}

// InternalError creates an internal server error response.
func InternalError() ErrorResponse {
	return NewErrorResponse(ErrCodeInternalError, "an internal error occurred")
}

// FromError maps a domain error to its HTTP status and response body.
// Unknown errors become a generic 500 so internals do not leak.
func FromError(err error) (int, ErrorResponse) {
	var (
		authErr     *errs.AuthError
		notFound    *errs.NotFoundError
		validation  *errs.ValidationError
		conflict    *errs.ConflictError
		rateLimit   *errs.RateLimitError
		transient   *errs.TransientNetworkError
		persistence *errs.PersistenceError
	)

	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized, NewErrorResponse(ErrCodeAuth, authErr.Error())
	case errors.As(err, &notFound):
		return http.StatusNotFound, NewErrorResponse(ErrCodeNotFound, notFound.Error())
	case errors.As(err, &validation):
		return http.StatusBadRequest, NewErrorResponse(ErrCodeValidation, validation.Error())
	case errors.As(err, &conflict):
		return http.StatusConflict, NewErrorResponse(ErrCodeConflict, conflict.Error())
	case errors.As(err, &rateLimit):
		return http.StatusTooManyRequests, NewErrorResponse(ErrCodeRateLimited, rateLimit.Error())
	case errors.As(err, &transient):
		return http.StatusBadGateway, NewErrorResponse(ErrCodeUpstream, transient.Error())
	case errors.As(err, &persistence):
		return http.StatusInternalServerError, NewErrorResponse(ErrCodePersistence, "storage operation failed: "+persistence.Op)
	default:
		return http.StatusInternalServerError, InternalError()
	}
}
