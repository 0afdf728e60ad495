// Package lock serializes calendar mutations per property.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/kirinyoku/calendar-engine/internal/observability"
	"github.com/kirinyoku/calendar-engine/internal/repository"
)

// Locker runs fn while holding the exclusive lock of one property. Waiting
// is bounded; when the bound is hit the call returns an error matching
// repository.ErrLockTimeout and fn is not run. A call made with the context
// handed to fn, for the same property, runs at once without locking again.
type Locker interface {
	WithPropertyLock(ctx context.Context, propertyID int64, fn func(ctx context.Context) error) error
}

type heldKey struct{ propertyID int64 }

// Held reports whether ctx descends from a WithPropertyLock call that holds
// the lock of propertyID.
func Held(ctx context.Context, propertyID int64) bool {
	v, _ := ctx.Value(heldKey{propertyID}).(bool)
	return v
}

// MarkHeld records in ctx that the lock of propertyID is held.
func MarkHeld(ctx context.Context, propertyID int64) context.Context {
	return context.WithValue(ctx, heldKey{propertyID}, true)
}

// Instrumented reports lock wait times of the wrapped Locker.
type Instrumented struct {
	next Locker
}

func NewInstrumented(next Locker) *Instrumented {
	return &Instrumented{next: next}
}

func (l *Instrumented) WithPropertyLock(
	ctx context.Context,
	propertyID int64,
	fn func(ctx context.Context) error,
) error {
	if Held(ctx, propertyID) {
		return fn(ctx)
	}

	start := time.Now()
	acquired := false

	err := l.next.WithPropertyLock(ctx, propertyID, func(ctx context.Context) error {
		acquired = true
		observability.ObserveLockWait(true, time.Since(start))
		return fn(ctx)
	})
	if !acquired && errors.Is(err, repository.ErrLockTimeout) {
		observability.ObserveLockWait(false, time.Since(start))
	}

	return err
}
