// Package domainerrors defines the coded error type returned by services.
//
// Every failure that crosses a service boundary carries a stable
// machine-readable Code plus a human-readable message. Handlers translate
// codes to HTTP statuses; callers branch on codes with HasCode rather than
// string matching. Stores return pkg/platform/sentinel errors and services
// wrap them into coded errors at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error identifier.
type Code string

const (
	// Generic codes shared by every domain.
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeBadRequest   Code = "bad_request"
	CodeValidation   Code = "validation_error"
	CodeInvalidInput Code = "invalid_input"
	CodeForbidden    Code = "forbidden"
	CodeUnauthorized Code = "unauthorized"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal_error"

	// Claim lifecycle codes.
	CodeInvalidTransition  Code = "invalid_transition"
	CodePreconditionFailed Code = "precondition_failed"
	CodeRecipientMismatch  Code = "recipient_mismatch"
	CodeMissingDocuments   Code = "missing_documents"

	// Release issuance and redemption codes. CodeDisputeWindowActive is the
	// only retryable code in the taxonomy: callers may re-issue once the
	// window has elapsed.
	CodeNoAssignments       Code = "no_assignments"
	CodeDisputeWindowActive Code = "dispute_window_active"
	CodeExpired             Code = "expired"
	CodeAlreadyConsumed     Code = "already_consumed"

	// CodeDecryptionFailed marks an integrity violation. It is fatal to the
	// call and must never be retried with the same inputs.
	CodeDecryptionFailed Code = "decryption_failed"
)

// Error is the coded error returned across service boundaries.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match two coded errors by code alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New builds a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// CodeOf returns the code of the outermost coded error, or CodeInternal when
// the chain carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Retryable reports whether the caller may legitimately retry the operation
// later with the same inputs.
func Retryable(err error) bool {
	return HasCode(err, CodeDisputeWindowActive)
}
