// Package certerr defines the error taxonomy for certification requests.
// Every failure surfaced to a caller carries the stage it occurred in and
// one of the enumerated codes, with the underlying cause preserved.
package certerr

import (
	"errors"
	"fmt"
)

// Stage identifies where in the request lifecycle a failure occurred.
type Stage string

const (
	StageConfig  Stage = "config"
	StageAuth    Stage = "auth"
	StageLookup  Stage = "lookup"
	StageClaim   Stage = "claim"
	StageMint    Stage = "mint"
	StagePersist Stage = "persist"
)

// Code is the caller-facing classification of a failure.
type Code string

const (
	CodeConfiguration Code = "configuration_error"
	CodeNotFound      Code = "not_found"
	CodeForbidden     Code = "forbidden"
	CodeConflict      Code = "conflict"
	CodeTransaction   Code = "transaction_error"
	CodeInternal      Code = "internal_error"
)

// Error is a classified certification failure.
type Error struct {
	Stage   Stage
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error without an underlying cause.
func New(stage Stage, code Code, message string) *Error {
	return &Error{Stage: stage, Code: code, Message: message}
}

// Wrap builds a classified error around an underlying cause.
func Wrap(stage Stage, code Code, message string, err error) *Error {
	return &Error{Stage: stage, Code: code, Message: message, Err: err}
}

// CodeOf extracts the classification code from err, or CodeInternal when
// err carries no classification.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

// HasCode reports whether err is classified with the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}
