package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewFieldError is a shortcut for a ValidationError on a single field.
func NewFieldError(field, msg string) error {
	return &ValidationError{Err: errors.New(msg), Fields: []FieldError{{Field: field, Error: msg}}}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

type notFound struct {
	message string
}

// NewNotFoundError returns an error that transports map to a 404.
func NewNotFoundError(msg string) error {
	return &notFound{message: msg}
}

func (e notFound) Error() string { return e.message }

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*notFound)
	return ok
}

type conflict struct {
	message string
}

// NewConflictError returns an error raised when the resource state forbids the operation.
func NewConflictError(msg string) error {
	return &conflict{message: msg}
}

func (e conflict) Error() string { return e.message }

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*conflict)
	return ok
}

type permissionDenied struct {
	message string
}

func NewPermissionError(msg string) error {
	return &permissionDenied{message: msg}
}

func (e permissionDenied) Error() string { return e.message }

func IsPermissionDenied(err error) bool {
	_, ok := errors.Cause(err).(*permissionDenied)
	return ok
}

// ErrPermissionDenied is the generic permission error.
var ErrPermissionDenied = NewPermissionError("permission denied")

type upstream struct {
	err     error
	message string
}

// NewUpstreamError wraps a failure of a third party the request depends on.
func NewUpstreamError(err error, msg string) error {
	return &upstream{err: err, message: msg}
}

func (e upstream) Error() string {
	if e.err == nil {
		return e.message
	}
	return e.message + ": " + e.err.Error()
}

// Message is the client-safe part of the error.
func (e upstream) Message() string { return e.message }

func IsUpstream(err error) bool {
	_, ok := errors.Cause(err).(*upstream)
	return ok
}

// UpstreamMessage returns the client-safe message of an upstream error.
func UpstreamMessage(err error) string {
	if e, ok := errors.Cause(err).(*upstream); ok {
		return e.message
	}
	return ""
}
