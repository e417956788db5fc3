// Package apierr provides standardized error handling for the Rendering
// Resource Manager API.
//
// It implements a consistent error format across the session, config and
// admin surfaces: structured error responses with machine-readable codes,
// automatic HTTP status mapping, and optional debugging details.
package apierr

import (
	"fmt"
	"net/http"
)

// AppError represents a standardized application error with HTTP context.
type AppError struct {
	// Code is a machine-readable error identifier (UPPER_SNAKE_CASE).
	Code string `json:"code"`
	// Message is a human-readable description.
	Message string `json:"message"`
	// Details carries additional debugging context; ToResponse includes it
	// in the JSON body whenever it is non-empty.
	Details string `json:"details,omitempty"`
	// StatusCode is the HTTP status to return; excluded from the JSON body.
	StatusCode int `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorResponse is the JSON error response shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes, one per distinguishable failure kind the REST surface reports.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeForbidden        = "FORBIDDEN"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeUnavailable      = "UNAVAILABLE"
	CodeInternal         = "INTERNAL"
	CodeSchedulerFailure = "SCHEDULER_FAILURE"
)

func statusForCode(code string) int {
	switch code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeInternal, CodeSchedulerFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusForCode(code)}
}

// NewWithDetails creates a new AppError carrying debugging details.
func NewWithDetails(code, message, details string) *AppError {
	return &AppError{Code: code, Message: message, Details: details, StatusCode: statusForCode(code)}
}

// Wrap wraps an existing error into an AppError.
func Wrap(code, message string, err error) *AppError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return NewWithDetails(code, message, details)
}

// ToResponse converts the AppError into its wire representation.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Code, Message: e.Message, Code: e.Code, Details: e.Details}
}

// Convenience constructors, one per error code above.

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message)
}

func Forbidden(message string) *AppError {
	return New(CodeForbidden, message)
}

func InvalidArgument(message string) *AppError {
	return New(CodeInvalidArgument, message)
}

func Unavailable(message string) *AppError {
	return New(CodeUnavailable, message)
}

func Internal(message string) *AppError {
	return New(CodeInternal, message)
}

func InternalWrap(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

func SchedulerFailure(message string) *AppError {
	return New(CodeSchedulerFailure, message)
}

// As extracts an *AppError from a generic error, falling back to an
// Internal error when err is not already one.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return InternalWrap("unexpected error", err)
}
