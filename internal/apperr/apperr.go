// Package apperr defines the coded business errors the service reports
// to callers. Business errors (NotFound, Forbidden, InsufficientStock,
// EmptyCart, Conflict, Validation) map to 4xx responses and are expected;
// Internal wraps storage or infrastructure failures and maps to a
// generic 5xx.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeForbidden         Code = "FORBIDDEN"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeEmptyCart         Code = "EMPTY_CART"
	CodeConflict          Code = "CONFLICT"
	CodeValidation        Code = "VALIDATION"
	CodeInternal          Code = "INTERNAL"
)

// Error carries a code, a caller-facing message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error around a cause.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// GetCode extracts the code from err, or CodeInternal if err carries none.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsBusiness reports whether err is an expected business-rule error
// rather than an infrastructure failure.
func IsBusiness(err error) bool {
	switch GetCode(err) {
	case CodeNotFound, CodeForbidden, CodeInsufficientStock, CodeEmptyCart, CodeConflict, CodeValidation:
		return true
	}
	return false
}
