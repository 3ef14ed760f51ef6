// Package schederr defines the engine's error-kind taxonomy: usage
// errors that propagate to the caller, and the distinction between
// those and structured, non-thrown assignment failures.
package schederr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a usage error so callers can branch without string
// matching. Assignment failures are never represented here; they are
// plain structs carried inside a SchedulingResult.
type Kind int

const (
	// ConcurrentEntry: scheduleOnce, getTaskAssigner, or a state
	// inspection operation was invoked while another was in flight.
	ConcurrentEntry Kind = iota
	// DuplicateOffer: an offer id collided with one already held.
	DuplicateOffer
	// BadAutoscaleRule: a rule's fields violate the min<=max, min>=1
	// contract, or a rule was added before the scale-attribute was set.
	BadAutoscaleRule
	// BadConfig: the configuration lacks a lease reject callback, has a
	// non-positive lease expiry, or sets an autoscaler callback without
	// an autoscale attribute name.
	BadConfig
	// UnknownVmId: a vmId-keyed mutation named a vmId no offer has ever
	// advertised.
	UnknownVmId
)

func (k Kind) String() string {
	switch k {
	case ConcurrentEntry:
		return "concurrent entry"
	case DuplicateOffer:
		return "duplicate offer"
	case BadAutoscaleRule:
		return "bad autoscale rule"
	case BadConfig:
		return "bad config"
	case UnknownVmId:
		return "unknown vmId"
	default:
		return "unknown"
	}
}

// UsageError wraps a usage-error Kind with a human-readable cause.
// This is the only error type scheduleOnce or the Mutation API ever
// return; all other failures are swallowed and logged (see engine.Scheduler).
type UsageError struct {
	error
	Kind Kind
}

// New wraps err with the given Kind. Returns nil if err is nil, mirroring
// the teacher's ScootError constructor contract.
func New(kind Kind, err error) *UsageError {
	if err == nil {
		return nil
	}
	return &UsageError{error: err, Kind: kind}
}

// Newf formats a message and wraps it with the given Kind.
func Newf(kind Kind, format string, args ...interface{}) *UsageError {
	return New(kind, fmt.Errorf(format, args...))
}

// Wrap attaches additional context to an existing error while
// preserving its Kind for the caller, using pkg/errors so the original
// cause remains inspectable via errors.Cause.
func Wrap(u *UsageError, msg string) *UsageError {
	if u == nil {
		return nil
	}
	return &UsageError{error: errors.Wrap(u.error, msg), Kind: u.Kind}
}

// Is reports whether err is a *UsageError of the given Kind.
func Is(err error, kind Kind) bool {
	u, ok := err.(*UsageError)
	return ok && u != nil && u.Kind == kind
}
