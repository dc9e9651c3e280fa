package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUpstreamError  = errors.New("upstream error")
	ErrRateLimited    = errors.New("rate limited")
	ErrUserError      = errors.New("user error")
	ErrMissingCartID  = errors.New("missing cart id")
	ErrFlushTimeout   = errors.New("flush timeout")
)

// genericUserErrorMessage is shown when the API signals failure without a message.
const genericUserErrorMessage = "the cart could not be updated"

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	StatusCode int         `json:"-"` // HTTP status, not serialized
	Err        error       `json:"-"` // Wrapped error, not serialized
	Details    []UserError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewUnauthorizedError creates a 401 error for auth failures.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: 401,
		Err:        ErrUnauthorized,
	}
}

// NewUpstreamError creates a 502 error for backend failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
func NewRateLimitError(service string) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: 429,
		Err:        ErrRateLimited,
	}
}

// NewUserError creates a 422 error from API-reported user errors.
// The message is the first reported message, or a generic fallback when the
// API signalled failure without one.
func NewUserError(userErrors []UserError) *APIError {
	msg := genericUserErrorMessage
	for _, ue := range userErrors {
		if ue.Message != "" {
			msg = ue.Message
			break
		}
	}
	return &APIError{
		Code:       "USER_ERROR",
		Message:    msg,
		StatusCode: 422,
		Err:        ErrUserError,
		Details:    userErrors,
	}
}

// NewMissingCartIDError reports an update or remove issued before a cart id
// was resolved. This is a caller bug and is never retried.
func NewMissingCartIDError(operation string) *APIError {
	return &APIError{
		Code:       "MISSING_CART_ID",
		Message:    fmt.Sprintf("%s requires a cart id", operation),
		StatusCode: 409,
		Err:        ErrMissingCartID,
	}
}

// NewFlushTimeoutError reports a blocking flush that did not settle in time.
func NewFlushTimeoutError(pending int) *APIError {
	return &APIError{
		Code:       "FLUSH_TIMEOUT",
		Message:    fmt.Sprintf("%d cart line(s) did not finish syncing", pending),
		StatusCode: 409,
		Err:        ErrFlushTimeout,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}

// IsTransient reports whether a failed call may succeed if retried unchanged.
// User errors, caller bugs, invalid input and auth failures are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrUserError),
		errors.Is(err, ErrMissingCartID),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrUnauthorized):
		return false
	}
	return true
}
