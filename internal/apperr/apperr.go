package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error code returned to callers.
type Code string

const (
	CodeInvalidRange       Code = "INVALID_RANGE"
	CodeInvalidObservation Code = "INVALID_OBSERVATION"
	CodeLocationNotFound   Code = "LOCATION_NOT_FOUND"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodeMissingSelector    Code = "MISSING_SELECTOR"
	CodeProviderError      Code = "PROVIDER_ERROR"
	CodeStorageError       Code = "STORAGE_ERROR"
)

// Error pairs a stable code with a human-readable message. An optional
// wrapped cause is preserved for errors.Is/As chains.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two Errors by code, so sentinel-style comparisons work:
// errors.Is(err, &apperr.Error{Code: apperr.CodeInvalidRange}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that records err as its cause.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the code from err, or CodeStorageError for anything
// that is not an *Error (opaque storage/infrastructure failures).
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeStorageError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
