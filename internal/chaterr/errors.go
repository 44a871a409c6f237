// Package chaterr defines the error taxonomy surfaced by the chat core.
package chaterr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION"
	CodeTransfer     Code = "TRANSFER"
	CodeAuthRequired Code = "AUTH_REQUIRED"
	CodeTransport    Code = "TRANSPORT"
	CodeRemoteCall   Code = "REMOTE_CALL"
)

type Error struct {
	Code   Code
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("chat: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("chat: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func Validation(reason string) *Error {
	return New(CodeValidation, reason, nil)
}

func Transfer(reason string, err error) *Error {
	return New(CodeTransfer, reason, err)
}

func AuthRequired(reason string, err error) *Error {
	return New(CodeAuthRequired, reason, err)
}

func Transport(reason string, err error) *Error {
	return New(CodeTransport, reason, err)
}

func RemoteCall(reason string, err error) *Error {
	return New(CodeRemoteCall, reason, err)
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Code, true
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
