package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kirinyoku/calendar-engine/internal/repository"
)

// Local is an in-process Locker for single-process deployments.
type Local struct {
	mu      sync.Mutex
	slots   map[int64]*slot
	timeout time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocal(timeout time.Duration) *Local {
	return &Local{
		slots:   make(map[int64]*slot),
		timeout: timeout,
	}
}

func (l *Local) WithPropertyLock(
	ctx context.Context,
	propertyID int64,
	fn func(ctx context.Context) error,
) error {
	const op = "lock.Local.WithPropertyLock"

	if Held(ctx, propertyID) {
		return fn(ctx)
	}

	s := l.ref(propertyID)
	defer l.unref(propertyID, s)

	t := time.NewTimer(l.timeout)
	defer t.Stop()

	select {
	case s.ch <- struct{}{}:
	case <-t.C:
		return fmt.Errorf("%s: %w", op, repository.ErrLockTimeout)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", op, repository.ErrLockTimeout)
		}
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	defer func() { <-s.ch }()

	return fn(MarkHeld(ctx, propertyID))
}

func (l *Local) ref(propertyID int64) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[propertyID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[propertyID] = s
	}
	s.refs++

	return s
}

func (l *Local) unref(propertyID int64, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, propertyID)
	}
}
