// Package apperr defines the error kinds shared by the template backends,
// the artifact retriever and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error so callers can pick a response without string matching.
type Kind string

const (
	KindNotFound   Kind = "NotFound"
	KindConnection Kind = "ConnectionFailure"
	KindBackend    Kind = "BackendError"
	KindExecution  Kind = "ExecutionError"
	KindValidation Kind = "ValidationError"
	KindClientInit Kind = "ClientInitializationError"
	KindFileAccess Kind = "FileAccessError"
)

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around err.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
// Errors that never passed through this package are ExecutionError.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindExecution
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConnection:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the detail string of err without its kind prefix.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
