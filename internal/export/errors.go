package export

import "fmt"

// Code identifies an export-layer failure kind (§7's Export error taxonomy).
type Code string

// Code values. Each is fatal for the exportable in question only; other
// exportables in the same run proceed (§7 propagation policy).
const (
	CodeParentNotFound        Code = "ParentNotFound"
	CodeElementNotFound       Code = "ElementNotFound"
	CodeInvalidCardinality    Code = "InvalidCardinality"
	CodeInvalidBindingStrength Code = "InvalidBindingStrength"
	CodeMissingRequiredField  Code = "MissingRequiredField"
	CodeInvalidType           Code = "InvalidType"
	CodeCanonicalError        Code = "CanonicalError"
)

// Error is the typed error value every exporter failure is wrapped in.
// Callers use errors.As against *Error and Code() rather than matching on
// Error()'s text.
type Error struct {
	code    Code
	Subject string // the name of the exportable being processed
	Detail  string
	cause   error
}

func newError(code Code, subject, detail string) *Error {
	return &Error{code: code, Subject: subject, Detail: detail}
}

// Code returns the stable error kind for errors.As call sites.
func (e *Error) Code() Code { return e.code }

func (e *Error) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("export %s: %s: %s", e.Subject, e.code, e.Detail)
	}
	return fmt.Sprintf("export: %s: %s", e.code, e.Detail)
}

// Unwrap exposes the underlying cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }
