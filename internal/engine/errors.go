// Package engine implements the ClawWatch ingestion and liveness engine:
// device registry, auth gate, liveness state machine, bounded metric
// series, token ledger, log collector and the read-only query service.
package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure. The HTTP layer maps kinds to
// status codes; the engine itself never speaks HTTP.
type Kind int

const (
	KindBadRequest Kind = iota + 1
	KindUnauthorized
	KindNotFound
	KindConflict
	KindTimeout
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTimeout:
		return "timeout"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the engine's typed error. Field is set for BadRequest so the
// agent sees which report field was rejected.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: field %q: %s", e.Kind, e.Field, e.Msg)
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func badRequest(field, msg string) *Error {
	return &Error{Kind: KindBadRequest, Field: field, Msg: msg}
}

func unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Msg: msg}
}

func notFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

func conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Msg: msg}
}

func timeout(err error) *Error {
	return &Error{Kind: KindTimeout, Msg: "operation deadline exceeded", Err: err}
}

func internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}
