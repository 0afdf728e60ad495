package redisrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/calendar-engine/internal/lock"
	redisx "github.com/kirinyoku/calendar-engine/internal/redis"
	"github.com/kirinyoku/calendar-engine/internal/repository"
	"github.com/redis/go-redis/v9"
)

// luaRelease deletes the lock only while it still carries our token.
const luaRelease = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// luaExtend pushes the expiry of a lock we still own.
const luaExtend = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// PropertyLock is a lease-based mutex in Redis. The lease is renewed while
// fn runs so a long critical section does not lose the lock.
type PropertyLock struct {
	rdb     *redis.Client
	timeout time.Duration
	lease   time.Duration
	poll    time.Duration
	release *redis.Script
	extend  *redis.Script
}

func NewPropertyLock(rdb *redis.Client, timeout time.Duration) *PropertyLock {
	return &PropertyLock{
		rdb:     rdb,
		timeout: timeout,
		lease:   30 * time.Second,
		poll:    10 * time.Millisecond,
		release: redis.NewScript(luaRelease),
		extend:  redis.NewScript(luaExtend),
	}
}

func (l *PropertyLock) WithPropertyLock(
	ctx context.Context,
	propertyID int64,
	fn func(ctx context.Context) error,
) error {
	const op = "redisrepo.PropertyLock.WithPropertyLock"

	if lock.Held(ctx, propertyID) {
		return fn(ctx)
	}

	key := redisx.KeyPropertyLock(propertyID)
	token := randomHex(16)

	if err := l.acquire(ctx, key, token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(l.lease / 3)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				_ = l.extend.Run(context.Background(), l.rdb, []string{key}, token, l.lease.Milliseconds()).Err()
			}
		}
	}()

	defer func() {
		close(stop)
		<-done
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = l.release.Run(releaseCtx, l.rdb, []string{key}, token).Err()
	}()

	return fn(lock.MarkHeld(ctx, propertyID))
}

func (l *PropertyLock) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.timeout)

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.lease).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		wait := l.poll
		if remaining := time.Until(deadline); remaining <= 0 {
			return repository.ErrLockTimeout
		} else if remaining < wait {
			wait = remaining
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return repository.ErrLockTimeout
			}
			return ctx.Err()
		case <-t.C:
		}
	}
}
