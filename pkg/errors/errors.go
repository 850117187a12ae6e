package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNilBuffer indicates that a nil or empty result buffer was supplied
	ErrNilBuffer = errors.New("result buffer is nil or empty")

	// ErrAlreadyRegistered indicates that a buffer registration is already active
	ErrAlreadyRegistered = errors.New("a buffer is already registered")

	// ErrNotRegistered indicates that no buffer registration is active
	ErrNotRegistered = errors.New("no buffer is registered")

	// ErrHandleReleased indicates that the buffer handle has been deregistered
	ErrHandleReleased = errors.New("buffer handle has been released")

	// ErrUnknownHandle indicates that the handle does not belong to the active registration
	ErrUnknownHandle = errors.New("handle does not match the active registration")

	// ErrIndexOutOfRange indicates that a destination index is outside the buffer
	ErrIndexOutOfRange = errors.New("destination index out of range")

	// ErrDuplicateIndex indicates that a destination index was submitted twice
	ErrDuplicateIndex = errors.New("destination index already submitted")

	// ErrTasksPending indicates that units are still in flight
	ErrTasksPending = errors.New("submitted units still pending")

	// ErrRuntimeClosed indicates that the task runtime has been shut down
	ErrRuntimeClosed = errors.New("task runtime is closed")

	// ErrInvalidAccessMode indicates that the declared buffer access mode is unsupported
	ErrInvalidAccessMode = errors.New("invalid buffer access mode")

	// ErrInvalidState indicates an operation was attempted in the wrong engine state
	ErrInvalidState = errors.New("operation not valid in current state")
)

// Error represents a structured Helios error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Helios error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsInvalidState checks if an error is an engine state violation
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsIndexOutOfRange checks if an error is an out-of-range destination index
func IsIndexOutOfRange(err error) bool {
	return errors.Is(err, ErrIndexOutOfRange)
}
