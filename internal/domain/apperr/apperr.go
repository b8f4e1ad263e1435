// Package apperr holds failure kinds shared by every domain package.
package apperr

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrUnavailable is returned when the catalog or the store did not answer
	// within the caller's deadline or the connection failed.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrNotLoggedIn is returned when an operation requires a caller identity
	// that is absent or does not match the expected role.
	ErrNotLoggedIn = errors.New("not logged in")
)

// InvalidInputError describes a request field that failed validation.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid returns an *InvalidInputError for field.
func Invalid(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}

// Unavailable marks err as an upstream failure when it is a deadline or
// cancellation, so callers can match it with errors.Is(err, ErrUnavailable).
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &unavailableError{err: err}
	}
	return err
}

// WithTimeout bounds ctx by d before a store call. A zero d leaves ctx as
// is. Errors caused by the deadline are turned into ErrUnavailable by
// Unavailable.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// Upstream marks err as an upstream failure unconditionally.
func Upstream(err error) error {
	if err == nil {
		return nil
	}
	return &unavailableError{err: err}
}

type unavailableError struct {
	err error
}

func (e *unavailableError) Error() string { return "upstream unavailable: " + e.err.Error() }

func (e *unavailableError) Unwrap() []error { return []error{ErrUnavailable, e.err} }
