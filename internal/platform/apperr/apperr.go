// Package apperr is FluxPay's replacement for the teacher's
// lib-common/domain error helpers: a small typed-error taxonomy that the
// HTTP boundary maps to the fixed code->status table in spec §6/§7.
//
// Every domain/application error returned across a package boundary should
// be one of these, never a bare fmt.Errorf, so the handler layer never has
// to guess at classification.
package apperr

import "fmt"

// Kind classifies an error for propagation and HTTP-status mapping.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindUpstream   Kind = "upstream"
	KindInvariant  Kind = "invariant"
	KindTimeout    Kind = "timeout"
)

// Error is a classified, code-carrying domain error.
type Error struct {
	Kind    Kind
	Code    string // domain-prefixed code, e.g. PAY_006
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func new_(kind Kind, code, msg string, wrapped error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: wrapped}
}

// NewNotFoundError builds a 404-class error for a missing entity.
func NewNotFoundError(code, entity, id string) *Error {
	return new_(KindNotFound, code, fmt.Sprintf("%s not found: %s", entity, id), nil)
}

// NewInvalidStateError builds the error for an illegal state-machine
// transition (spec §4.4: "never silently ignored").
func NewInvalidStateError(code, from, to string) *Error {
	return new_(KindValidation, code, fmt.Sprintf("invalid transition from %s to %s", from, to), nil)
}

// NewConflictError builds a 4xx conflict error (optimistic lock loss,
// idempotency payload mismatch, duplicate correlation id, ...).
func NewConflictError(code, msg string) *Error {
	return new_(KindConflict, code, msg, nil)
}

// NewValidationError builds a plain input-validation error.
func NewValidationError(code, msg string) *Error {
	return new_(KindValidation, code, msg, nil)
}

// NewUpstreamError wraps a PG/event-bus failure. Infrastructure wraps
// transport-level errors into this domain-neutral category before they
// cross the HTTP boundary (spec §7 propagation policy).
func NewUpstreamError(code, msg string, wrapped error) *Error {
	return new_(KindUpstream, code, msg, wrapped)
}

// NewInvariantError signals a programming bug or corrupted state.
func NewInvariantError(code, msg string) *Error {
	return new_(KindInvariant, code, msg, nil)
}

// NewTimeoutError signals a deadline exceeded.
func NewTimeoutError(code, msg string) *Error {
	return new_(KindTimeout, code, msg, nil)
}

// As extracts an *Error from err, if any.
func As(err error) (*Error, bool) {
	ae, ok := err.(*Error)
	return ae, ok
}
