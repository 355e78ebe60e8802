// Package scanerr defines the typed error taxonomy from spec.md §7, so
// callers branch on Kind instead of parsing error strings or matching
// exception types (per "exceptions for control flow -> explicit
// outcomes").
package scanerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by its disposition, per spec.md's error table.
type Kind int

const (
	// KindAuthentication corresponds to a 401 from the remote tracker:
	// fatal, abort the scan.
	KindAuthentication Kind = iota
	// KindAuthorization corresponds to a 403: fatal, abort the scan.
	KindAuthorization
	// KindRateLimited corresponds to a 429: surfaced, not retried.
	KindRateLimited
	// KindTransport is a transient network/5xx error that exhausted its
	// retries inside the HTTP client.
	KindTransport
	// KindPersistence is a Storage Store write failure.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "permission"
	case KindRateLimited:
		return "rate-limited"
	case KindTransport:
		return "connectivity"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a disposition Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Kind and the operation name that observed it.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
