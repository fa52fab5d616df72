package errors

import "fmt"

// ErrorCode represents a structured error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"  // 400
	ErrHandleNotFound ErrorCode = "HANDLE_NOT_FOUND" // 404
	ErrHandleExpired  ErrorCode = "HANDLE_EXPIRED"   // 410
	ErrUpstream       ErrorCode = "UPSTREAM_ERROR"   // 502
	ErrInternal       ErrorCode = "INTERNAL"         // 500
)

// Error represents a structured error with code, status, and details.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *Error {
	return &Error{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewHandleNotFound creates a 404 error for a token that does not exist.
// The agent's remedy is always the same: re-run the originating query.
func NewHandleNotFound(token string) *Error {
	return &Error{
		Code:    ErrHandleNotFound,
		Status:  404,
		Message: fmt.Sprintf("query handle not found: %s (re-run the query to get a fresh handle)", token),
		Details: map[string]any{"token": token},
	}
}

// NewHandleExpired creates a 410 error for a token whose ttl has elapsed.
// Distinct from not-found for diagnostics only; callers treat both identically.
func NewHandleExpired(token string) *Error {
	return &Error{
		Code:    ErrHandleExpired,
		Status:  410,
		Message: fmt.Sprintf("query handle expired: %s (re-run the query to get a fresh handle)", token),
		Details: map[string]any{"token": token},
	}
}

// NewUpstream creates a 502 error for a failed work-tracking API call.
func NewUpstream(msg string) *Error {
	return &Error{
		Code:    ErrUpstream,
		Status:  502,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a structured Error with the given code.
func Is(err error, code ErrorCode) bool {
	if sErr, ok := err.(*Error); ok {
		return sErr.Code == code
	}
	return false
}

// IsHandleGone reports whether err is either handle error kind.
// "Expired" and "absent" carry distinct codes but are handled identically.
func IsHandleGone(err error) bool {
	return Is(err, ErrHandleNotFound) || Is(err, ErrHandleExpired)
}
