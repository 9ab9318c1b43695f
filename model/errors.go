package model

import (
	"fmt"
)

// ErrorCode classifies a database error.
type ErrorCode int

// Error codes.
const (
	CodeOK ErrorCode = iota
	// CodeLogic marks malformed requests the caller can fix
	// (wrong composite arity, sort on merged queries, unsupported
	// conversions).
	CodeLogic
	// CodeQueryExec marks conditions detected during execution
	// (leading OR, unknown operator, distinct on full-text).
	CodeQueryExec
	// CodeParams marks invalid configuration or API parameters.
	CodeParams
	// CodeConflict marks schema conflicts such as redefining an
	// index with different options.
	CodeConflict
	// CodeForbidden marks operations rejected by namespace state.
	CodeForbidden
	// CodeNotFound marks missing namespaces or rows.
	CodeNotFound
	// CodeNotValid marks corrupt or non-decodable stored data.
	CodeNotValid
)

// Error is a classified database error.
//
// The numeric code survives wrapping, so callers use errors.As to
// recover it and branch without matching message text.
type Error struct {
	code  ErrorCode
	msg   string
	cause error
}

// NewError creates an Error with the given code and formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error with the given code wrapping a cause.
func WrapError(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...), cause: cause}
}

// Code returns the error classification.
func (e *Error) Code() ErrorCode {
	if e == nil {
		return CodeOK
	}
	return e.code
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

// ErrLogic creates a CodeLogic error.
func ErrLogic(format string, args ...any) *Error {
	return NewError(CodeLogic, format, args...)
}

// ErrQueryExec creates a CodeQueryExec error.
func ErrQueryExec(format string, args ...any) *Error {
	return NewError(CodeQueryExec, format, args...)
}

// ErrParams creates a CodeParams error.
func ErrParams(format string, args ...any) *Error {
	return NewError(CodeParams, format, args...)
}

// ErrConflict creates a CodeConflict error.
func ErrConflict(format string, args ...any) *Error {
	return NewError(CodeConflict, format, args...)
}

// ErrNotFound creates a CodeNotFound error.
func ErrNotFound(format string, args ...any) *Error {
	return NewError(CodeNotFound, format, args...)
}

// ErrNotValid creates a CodeNotValid error.
func ErrNotValid(format string, args ...any) *Error {
	return NewError(CodeNotValid, format, args...)
}
