// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package apperror centralizes the error taxonomy every HTTP handler maps
// to a response: validation, unauthorized, forbidden, not_found, conflict,
// dependency_failed, timeout, internal. It generalizes the teacher's
// per-handler `{"error": "..."}` JSON body into one typed value that
// carries enough information for internal/server to pick the right status
// code and body without re-deriving it ad hoc in every handler.
package apperror

import (
	"errors"
	"fmt"
)

// Kind is the error taxonomy of spec §7.
type Kind string

const (
	Validation       Kind = "validation"
	Unauthorized     Kind = "unauthorized"
	Forbidden        Kind = "forbidden"
	NotFound         Kind = "not_found"
	Conflict         Kind = "conflict"
	DependencyFailed Kind = "dependency_failed"
	Timeout          Kind = "timeout"
	Internal         Kind = "internal"
)

// Error is the typed error every component boundary returns. Message is
// always safe to show a client; Detail is optional extra context also
// considered safe (never a stack trace or an internal error string).
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error that carries an internal cause for logging,
// without leaking the cause's text to the client.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetail attaches a client-safe detail string.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// As reports whether err (or anything it wraps) is an *Error, assigning it
// to target if so.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else
// Internal — the safe default for anything unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Validationf(format string, args ...any) *Error {
	return New(Validation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Forbiddenf(format string, args ...any) *Error {
	return New(Forbidden, fmt.Sprintf(format, args...))
}

func Unauthorizedf(format string, args ...any) *Error {
	return New(Unauthorized, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}
