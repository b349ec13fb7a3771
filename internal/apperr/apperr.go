// Package apperr defines the error values handlers return.  An *Error is an
// operational failure: it carries the HTTP status and a message that is safe
// to show to clients.  Every other error is treated as a programming error
// and collapses to a generic 500 in production.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies an operational error.
type Kind string

const (
	Validation       Kind = "validation"
	NotFound         Kind = "not_found"
	Authentication   Kind = "authentication"
	Authorization    Kind = "authorization"
	DuplicateKey     Kind = "duplicate_key"
	InvalidReference Kind = "invalid_reference"
	Upstream         Kind = "upstream"
	RateLimited      Kind = "rate_limited"
	BadRequest       Kind = "bad_request"
	Internal         Kind = "internal"
)

var defaultStatus = map[Kind]int{
	Validation:       http.StatusBadRequest,
	NotFound:         http.StatusNotFound,
	Authentication:   http.StatusUnauthorized,
	Authorization:    http.StatusForbidden,
	DuplicateKey:     http.StatusConflict,
	InvalidReference: http.StatusBadRequest,
	Upstream:         http.StatusBadGateway,
	RateLimited:      http.StatusTooManyRequests,
	BadRequest:       http.StatusBadRequest,
	Internal:         http.StatusInternalServerError,
}

// Error is a classified error with a client-facing message.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error

	stack error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Operational reports whether the message may be shown to clients.
func (e *Error) Operational() bool { return e.Kind != Internal }

// StatusText returns the envelope status: "fail" for 4xx, "error" otherwise.
func (e *Error) StatusText() string {
	return StatusText(e.Status)
}

// Stack returns the stack captured where the error was created.
func (e *Error) Stack() string {
	if e.stack == nil {
		return ""
	}
	return fmt.Sprintf("%+v", e.stack)
}

// WithStatus overrides the default status of the kind.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Status:  statusFor(kind),
		Message: message,
		stack:   pkgerrors.New(message),
	}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap classifies err under kind with a client-facing message.
func Wrap(err error, kind Kind, message string) *Error {
	e := New(kind, message)
	e.Err = err
	if err != nil {
		e.stack = pkgerrors.WithStack(err)
	}
	return e
}

// As extracts an *Error from the chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}

// NotFoundID is the message used by the generic handlers.
func NotFoundID() *Error {
	return New(NotFound, "No document found with that ID")
}

// StatusText maps an HTTP status to the envelope status field.
func StatusText(status int) string {
	if status >= 400 && status < 500 {
		return "fail"
	}
	return "error"
}

func statusFor(kind Kind) int {
	if s, ok := defaultStatus[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}
