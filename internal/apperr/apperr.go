// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package apperr defines the error kinds the subscription flow reports to its
// callers and a helper that renders a full cause chain for logs.
package apperr

import (
	"errors"
	"strings"
)

// Kind classifies an error by who is at fault and how it surfaces.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is malformed client input.
	KindValidation
	// KindConflict is a uniqueness violation in storage.
	KindConflict
	// KindNotFound is an unresolved lookup, such as an unknown token.
	KindNotFound
	// KindStorage is any database failure.
	KindStorage
	// KindDelivery is a failed outbound email.
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindStorage:
		return "storage"
	case KindDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

// Error carries a kind, the operation that failed and an optional cause.
// Error() describes this level only; use Chain to include causes.
type Error struct {
	Err  error
	Op   string
	Msg  string
	Code string
	Kind Kind
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Msg != "":
		return e.Op + ": " + e.Msg
	case e.Msg != "":
		return e.Msg
	case e.Op != "":
		return e.Op
	default:
		return e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports rejected client input. msg is safe to show to clients
// and code is a stable identifier for localizing it.
func Validation(code, msg string) error {
	return &Error{Kind: KindValidation, Code: code, Msg: msg}
}

// NotFound reports an unresolved lookup. msg is safe to show to clients.
func NotFound(code, msg string) error {
	return &Error{Kind: KindNotFound, Code: code, Msg: msg}
}

// Conflict wraps a uniqueness violation raised while performing op.
func Conflict(op string, err error) error {
	return &Error{Kind: KindConflict, Op: op, Msg: "already exists", Err: err}
}

// Storage wraps a database failure raised while performing op.
func Storage(op string, err error) error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// Delivery wraps an email dispatch failure raised while performing op.
func Delivery(op string, err error) error {
	return &Error{Kind: KindDelivery, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err's chain holds an *Error of the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// Message returns the client-safe message of a validation or not-found
// error and an empty string for anything else.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && (e.Kind == KindValidation || e.Kind == KindNotFound) {
		return e.Msg
	}
	return ""
}

// Code returns the code of a validation or not-found error and an empty
// string for anything else.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) && (e.Kind == KindValidation || e.Kind == KindNotFound) {
		return e.Code
	}
	return ""
}

// Chain renders err followed by one "Caused by:" line per wrapped cause.
func Chain(err error) string {
	if err == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(err.Error())
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		b.WriteString("\nCaused by: ")
		b.WriteString(cause.Error())
	}
	return b.String()
}
