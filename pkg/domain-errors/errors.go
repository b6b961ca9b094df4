// Package domainerrors defines the coded errors the ledger surfaces to
// callers. Every rejected submission carries a machine-distinguishable Code
// so the transport layer can decide to retry, prompt the user, or fail
// permanently.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code classifies a domain error.
type Code string

const (
	// CodeForbidden covers both missing-scope and not-assigned rejections.
	// Never retried automatically.
	CodeForbidden Code = "forbidden"

	// CodeNotYetCreated means the event is still addressed by a client
	// transaction id and has no canonical id. Retryable with backoff.
	CodeNotYetCreated Code = "event_not_yet_created"

	// CodeValidationFailed carries the complete list of offending fields.
	CodeValidationFailed Code = "validation_failed"

	// CodeInvalidTransition means the action type is not reachable from the
	// event's current workflow status.
	CodeInvalidTransition Code = "invalid_transition"

	// CodeNotFound means the referenced event, draft, or attachment does
	// not exist.
	CodeNotFound Code = "not_found"

	// CodeConflict is surfaced after the ledger has exhausted its internal
	// retries against concurrent appends. Transient.
	CodeConflict Code = "conflicting_concurrent_write"

	// CodeInvalidInput covers malformed requests (bad ids, empty payloads).
	CodeInvalidInput Code = "invalid_input"

	// CodeInternal is the fallback for unexpected infrastructure failures.
	CodeInternal Code = "internal"
)

// FieldError pairs a declaration field path with the reason it was rejected.
type FieldError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Error is the coded error type returned by domain services.
type Error struct {
	Code    Code
	Message string
	Fields  []FieldError
	cause   error
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Path + ": " + f.Reason
	}
	return fmt.Sprintf("%s: %s [%s]", e.Code, e.Message, strings.Join(parts, "; "))
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds a coded error preserving the underlying cause for errors.Is
// chains and logging.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// NewValidation builds a validation error carrying every offending field,
// never only the first.
func NewValidation(fields []FieldError) *Error {
	return &Error{
		Code:    CodeValidationFailed,
		Message: fmt.Sprintf("declaration invalid (%d field(s))", len(fields)),
		Fields:  fields,
	}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// FieldsOf returns the field errors attached to err, if any.
func FieldsOf(err error) []FieldError {
	var de *Error
	if errors.As(err, &de) {
		return de.Fields
	}
	return nil
}

// Retryable reports whether the caller should back off and retry.
func Retryable(err error) bool {
	return HasCode(err, CodeNotYetCreated) || HasCode(err, CodeConflict)
}

// ToHTTPStatus maps a code to an HTTP status for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotYetCreated:
		return http.StatusConflict
	case CodeValidationFailed, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeInvalidTransition:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
