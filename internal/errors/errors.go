// Package errors provides error code definitions shared by the walk core and
// the mobile bridge.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code that can be bridged to the app layer.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"
	ErrNotFound ErrorCode = "NOT_FOUND"

	// Local storage errors
	ErrStorageWrite ErrorCode = "STORAGE_WRITE_ERROR"
	ErrStorageRead  ErrorCode = "STORAGE_READ_ERROR"

	// Recording errors
	ErrWalkStart    ErrorCode = "WALK_START_ERROR"
	ErrInvalidState ErrorCode = "INVALID_STATE"

	// Sync errors
	ErrRemoteSync ErrorCode = "REMOTE_SYNC_ERROR"
	ErrEventSync  ErrorCode = "EVENT_SYNC_ERROR"

	// Recovery errors
	ErrAuthNotReady ErrorCode = "AUTH_NOT_READY"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is reports whether any error in err's chain is an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	for err != nil {
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// CodeOf returns the code of the first AppError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
