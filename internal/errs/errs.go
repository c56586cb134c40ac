// Package errs defines the scanner's error taxonomy. Stages convert everything
// except Kind == InvalidConfig into a rejection for the current symbol; a scan
// never aborts on a single-symbol failure.
package errs

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy kinds a stage can surface.
type Kind string

const (
	DataUnavailable  Kind = "DataUnavailable"
	BadOHLCV         Kind = "BadOHLCV"
	InvalidConfig    Kind = "InvalidConfig"
	RateLimited      Kind = "RateLimited"
	NetworkTransient Kind = "NetworkTransient"
	RiskRejected     Kind = "RiskRejected"
	CooldownActive   Kind = "CooldownActive"
	ScorerBlocked    Kind = "ScorerBlocked"
	Cancelled        Kind = "Cancelled"
	InternalError    Kind = "InternalError"
)

// Error wraps an underlying cause with a taxonomy Kind and optional structured
// diagnostics for telemetry.
type Error struct {
	Kind        Kind
	Reason      string
	Diagnostics map[string]any
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap builds an Error of the given kind around an existing cause.
func Wrap(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}

// WithDiagnostics attaches structured diagnostics and returns the same error
// for chaining.
func (e *Error) WithDiagnostics(d map[string]any) *Error {
	e.Diagnostics = d
	return e
}

// Is reports whether the first *Error in err's wrapped chain carries the
// given Kind. A Kind nested under another *Error is not matched.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to InternalError for errors
// that never went through this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}
