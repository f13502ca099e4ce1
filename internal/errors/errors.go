package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a user-facing error category of the control surface.
type ErrorCode string

const (
	ErrSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"  // 404
	ErrNoNextPage       ErrorCode = "NO_NEXT_PAGE"       // 409
	ErrNoPreviousPage   ErrorCode = "NO_PREVIOUS_PAGE"   // 409
	ErrInvalidParameter ErrorCode = "INVALID_PARAMETER"  // 400
	ErrNoActiveSessions ErrorCode = "NO_ACTIVE_SESSIONS" // 404
	ErrInternal         ErrorCode = "INTERNAL"           // 500
)

// BridgeError is a structured error carrying an HTTP status for the control surface.
type BridgeError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewSessionNotFound creates a 404 error for an unknown session id.
func NewSessionNotFound(sessionID string) *BridgeError {
	return &BridgeError{
		Code:    ErrSessionNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("session not found: %s", sessionID),
		Details: map[string]any{"session_id": sessionID},
	}
}

// NewNoNextPage creates a 409 error when the page cursor is already on the last page.
func NewNoNextPage(index, total int) *BridgeError {
	return &BridgeError{
		Code:    ErrNoNextPage,
		Status:  http.StatusConflict,
		Message: "no next page",
		Details: map[string]any{"page_index": index, "total_pages": total},
	}
}

// NewNoPreviousPage creates a 409 error when the page cursor is already on the first page.
func NewNoPreviousPage(index, total int) *BridgeError {
	return &BridgeError{
		Code:    ErrNoPreviousPage,
		Status:  http.StatusConflict,
		Message: "no previous page",
		Details: map[string]any{"page_index": index, "total_pages": total},
	}
}

// NewInvalidParameter creates a 400 error for a rejected control parameter.
func NewInvalidParameter(msg string) *BridgeError {
	return &BridgeError{
		Code:    ErrInvalidParameter,
		Status:  http.StatusBadRequest,
		Message: msg,
	}
}

// NewNoActiveSessions creates a 404 error for broadcasts with nobody connected.
func NewNoActiveSessions() *BridgeError {
	return &BridgeError{
		Code:    ErrNoActiveSessions,
		Status:  http.StatusNotFound,
		Message: "no active sessions",
	}
}

// NewInternal creates a 500 error for unexpected failures.
func NewInternal(err error) *BridgeError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &BridgeError{
		Code:    ErrInternal,
		Status:  http.StatusInternalServerError,
		Message: msg,
	}
}

// Is reports whether err is (or wraps) a BridgeError with the given code.
func Is(err error, code ErrorCode) bool {
	var bErr *BridgeError
	if stderrors.As(err, &bErr) {
		return bErr.Code == code
	}
	return false
}

// As extracts a BridgeError from err, wrapping anything else as INTERNAL.
func As(err error) *BridgeError {
	var bErr *BridgeError
	if stderrors.As(err, &bErr) {
		return bErr
	}
	return NewInternal(err)
}
