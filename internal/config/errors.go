package config

import "fmt"

// Code identifies a config-layer failure kind.
type Code string

const (
	CodeNotFound           Code = "NotFound"
	CodeMalformed          Code = "Malformed"
	CodeMissingField       Code = "MissingField"
	CodeInvalidFHIRVersion Code = "InvalidFHIRVersion"
	CodeInvalidStatus      Code = "InvalidStatus"
)

// Error is the typed error value every config failure is wrapped in.
// Callers use errors.As against *Error and Code() rather than matching on
// Error()'s text.
type Error struct {
	code    Code
	Path    string
	Detail  string
	cause   error
}

func newError(code Code, path, detail string, cause error) *Error {
	return &Error{code: code, Path: path, Detail: detail, cause: cause}
}

// Code returns the stable error kind for errors.As call sites.
func (e *Error) Code() Code { return e.code }

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s: %s", e.Path, e.code, e.Detail)
}

// Unwrap exposes the underlying cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }
