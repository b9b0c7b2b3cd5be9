// Package forgeerr implements a result-type-flavored error kind,
// leaning on Go's pervasive fmt.Errorf(...: %w) wrapping style but
// closed over a fixed enum instead of ad hoc strings.
package forgeerr

import (
	"errors"
	"fmt"
)

// Kind is the closed error taxonomy every package reports failures
// through instead of ad hoc sentinel errors.
type Kind string

const (
	OracleTransient       Kind = "OracleTransient"
	OracleMalformed       Kind = "OracleMalformed"
	ContractOverlap       Kind = "ContractOverlap"
	CycleDetected         Kind = "CycleDetected"
	AtomExhausted         Kind = "AtomExhausted"
	CompileDiagnostic     Kind = "CompileDiagnostic"
	ConflictUnresolvable  Kind = "ConflictUnresolvable"
	Canceled              Kind = "Canceled"
)

// Retriable reports whether the kind is expected to succeed on retry.
func (k Kind) Retriable() bool {
	return k == OracleTransient || k == OracleMalformed
}

// Fatal reports whether the kind ends the run outright (bubbles to the
// entry point) rather than failing a single atom.
func (k Kind) Fatal() bool {
	switch k {
	case ContractOverlap, CycleDetected, ConflictUnresolvable, Canceled:
		return true
	default:
		return false
	}
}

// Error wraps a Kind, the operation it occurred in, and the underlying
// cause. errors.As extracts it; errors.Is matches it against another
// *Error of the same Kind, such as one returned by Sentinel.
type Error struct {
	Kind  Kind
	Op    string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, forgeerr.Sentinel(kind)) kind checks work: any
// *Error target with the same Kind matches, whatever its Op or cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an *Error for the given kind/op, wrapping cause.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// Sentinel returns a bare *Error usable as an errors.Is target, e.g.
//
//	if errors.Is(err, forgeerr.Sentinel(forgeerr.ContractOverlap)) { ... }
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
