package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/calendar-engine/internal/lock"
	"github.com/kirinyoku/calendar-engine/internal/repository"
)

// AdvisoryLock serializes calendar writers of one property with a session
// advisory lock held on a dedicated pool connection for the duration of fn.
type AdvisoryLock struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewAdvisoryLock(pool *pgxpool.Pool, timeout time.Duration) *AdvisoryLock {
	return &AdvisoryLock{pool: pool, timeout: timeout}
}

func (l *AdvisoryLock) WithPropertyLock(
	ctx context.Context,
	propertyID int64,
	fn func(ctx context.Context) error,
) error {
	const op = "postgresrepo.AdvisoryLock.WithPropertyLock"

	if lock.Held(ctx, propertyID) {
		return fn(ctx)
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return wrapDBErr(op, err)
	}

	key := "calendar.property:" + strconv.FormatInt(propertyID, 10)

	if _, err := conn.Exec(ctx, fmt.Sprintf("SET lock_timeout = %d", l.timeout.Milliseconds())); err != nil {
		conn.Release()
		return wrapDBErr(op, err)
	}

	_, lockErr := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, key)

	// lock_timeout is session state; it must not leak to the next user of
	// the pooled connection.
	resetCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := conn.Exec(resetCtx, `RESET lock_timeout`); err != nil {
		_ = conn.Conn().Close(resetCtx)
		if lockErr == nil {
			conn.Release()
			return wrapDBErr(op, err)
		}
	}

	if lockErr != nil {
		conn.Release()
		err := wrapDBErr(op, lockErr)
		if ctx.Err() == nil && !isLockTimeout(err) {
			return err
		}
		return fmt.Errorf("%s: %w", op, repository.ErrLockTimeout)
	}

	defer func() {
		// The lock must not outlive this call. If the unlock cannot be
		// confirmed the session is closed, which releases it.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var released bool
		err := conn.QueryRow(unlockCtx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key).Scan(&released)
		if err != nil || !released {
			_ = conn.Conn().Close(unlockCtx)
		}
		conn.Release()
	}()

	return fn(lock.MarkHeld(ctx, propertyID))
}

func isLockTimeout(err error) bool {
	return errors.Is(err, repository.ErrLockTimeout)
}
