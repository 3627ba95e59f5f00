// Package errs defines the fault taxonomy shared across the engine: a
// closed set of Kinds, not exception types, so callers can switch on what
// happened instead of unwrapping a type hierarchy.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a fault by its origin and propagation policy (spec §7).
type Kind string

const (
	InsufficientData  Kind = "insufficient_data"
	PatternInvalidation Kind = "pattern_invalidation"
	BrokerTransient   Kind = "broker_transient"
	BrokerCritical    Kind = "broker_critical"
	BrokerReject      Kind = "broker_reject"
	DuplicateOrder    Kind = "duplicate_order"
	RiskHalt          Kind = "risk_halt"
	StorageCorruption Kind = "storage_corruption"
	ConfigError       Kind = "config_error"
)

// Error wraps an underlying cause with a Kind and a component-prefixed
// message, following the teacher's fmt.Errorf("pkg.Func: context: %w")
// wrapping convention.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an Error of the given Kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an Error of the given Kind wrapping err.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err is (or wraps) an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
