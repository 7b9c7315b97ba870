package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUpstream            = errors.New("upstream error")
	ErrRateLimited         = errors.New("rate limited")
	ErrAllStrategiesFailed = errors.New("all fetch strategies failed")
	ErrChallengeUnsolved   = errors.New("challenge unsolved")
)

// APIError represents a structured error for the JSON admin routes.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
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

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: http.StatusBadRequest,
		Err:        ErrInvalidRequest,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewRateLimitError creates a 429 error when the upstream limiter rejects a request.
func NewRateLimitError(err error) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    "upstream rate limit exceeded, please retry later",
		StatusCode: http.StatusTooManyRequests,
		Err:        fmt.Errorf("%w: %v", ErrRateLimited, err),
	}
}

// === Dispatch errors ===

// StatusError reports an upstream response whose status a strategy treats as
// a failure (for example, a 503 that survived every retry).
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Unwrap() error {
	return ErrUpstream
}

// DispatchError is returned when no fetch strategy produced a response.
// StatusCode is the last upstream status observed, or 500 when none was.
type DispatchError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the last strategy error.
func (e *DispatchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAllStrategiesFailed}
	}
	return []error{ErrAllStrategiesFailed, e.Err}
}

// NewDispatchError builds a DispatchError from the last strategy error.
func NewDispatchError(last error) *DispatchError {
	status := http.StatusInternalServerError
	var se *StatusError
	if errors.As(last, &se) && se.StatusCode > 0 {
		status = se.StatusCode
	}
	msg := "unable to reach the target site"
	if last != nil {
		msg = last.Error()
	}
	return &DispatchError{
		StatusCode: status,
		Message:    msg,
		Err:        last,
	}
}
