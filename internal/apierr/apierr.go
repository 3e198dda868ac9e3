// Package apierr is the closed error taxonomy shared across component
// boundaries. Components return these categorised errors; only the HTTP
// handlers at the edge translate them to status codes.
package apierr

import "errors"

// Code is one of a closed set of error categories.
type Code string

const (
	CodeNotFound      Code = "not_found"
	CodeInvalidInput  Code = "invalid_input"
	CodeConflict      Code = "conflict"
	CodeForbidden     Code = "forbidden"
	CodeStorage       Code = "storage"
	CodeUpstream      Code = "upstream"
)

// Error is a categorised error carrying a stable code and a
// human-readable message, never used for control flow within a
// component.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

func NotFound(msg string) *Error               { return newErr(CodeNotFound, msg, nil) }
func InvalidInput(msg string) *Error           { return newErr(CodeInvalidInput, msg, nil) }
func Conflict(msg string) *Error               { return newErr(CodeConflict, msg, nil) }
func Forbidden(msg string) *Error              { return newErr(CodeForbidden, msg, nil) }
func Storage(msg string, err error) *Error     { return newErr(CodeStorage, msg, err) }
func Upstream(msg string, err error) *Error    { return newErr(CodeUpstream, msg, err) }

// As reports whether err is an *Error and, if so, returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the category of err, defaulting to CodeStorage for
// uncategorised errors so an unexpected failure still surfaces as a 5xx
// rather than a misleading 4xx.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeStorage
}

var (
	ErrAlreadyInMaintenance = Conflict("rack is already in maintenance")
	ErrNoRacksFound         = InvalidInput("no racks matched the requested chain/site/dc")
)
