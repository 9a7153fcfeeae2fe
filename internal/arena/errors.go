package arena

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unclassified error.
	CodeUnknown Code = "UNKNOWN"

	CodeNotFound            Code = "NOT_FOUND"
	CodeInsufficientPlayers Code = "INSUFFICIENT_PLAYERS"
	CodeAlreadyConcluded    Code = "ALREADY_CONCLUDED"
	CodeInvalidPlayer       Code = "INVALID_PLAYER"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeConflict            Code = "CONFLICT"

	// Upstream and storage failures
	CodeUpstreamGeneration Code = "UPSTREAM_GENERATION_FAILURE"
	CodeSchemaViolation    Code = "SCHEMA_VIOLATION"
	CodePersistence        Code = "PERSISTENCE_FAILURE"
)

// Sentinels for errors.Is checks. Matching is by code only.
var (
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrInsufficientPlayers = &Error{Code: CodeInsufficientPlayers}
	ErrAlreadyConcluded    = &Error{Code: CodeAlreadyConcluded}
	ErrInvalidPlayer       = &Error{Code: CodeInvalidPlayer}
	ErrInvalidArgument     = &Error{Code: CodeInvalidArgument}
	ErrConflict            = &Error{Code: CodeConflict}
	ErrUpstreamGeneration  = &Error{Code: CodeUpstreamGeneration}
	ErrSchemaViolation     = &Error{Code: CodeSchemaViolation}
	ErrPersistence         = &Error{Code: CodePersistence}
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Human-readable message
	Metadata map[string]string // Additional context for logs
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata creates a domain error carrying metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first domain error in err's chain.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeUnknown
}

// HTTPStatus maps a code to the status used by the JSON API. Everything
// except a missing record or a malformed request is reported as a
// server-side failure.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
