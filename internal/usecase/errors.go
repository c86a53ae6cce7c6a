package usecase

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrorConfiguration ErrorKind = "CONFIGURATION"
	ErrorStorage       ErrorKind = "STORAGE"
	ErrorParse         ErrorKind = "PARSE"
	ErrorValidation    ErrorKind = "VALIDATION"
)

type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a classified error. Callers outside the package use it
// for failures detected before a usecase runs, such as configuration.
func NewError(kind ErrorKind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var ue *Error
	if !errors.As(err, &ue) {
		return "", false
	}
	return ue.Kind, true
}

func newError(kind ErrorKind, reason string, err error) *Error {
	return NewError(kind, reason, err)
}
