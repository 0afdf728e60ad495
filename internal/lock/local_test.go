package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/calendar-engine/internal/lock"
	"github.com/kirinyoku/calendar-engine/internal/repository"
)

func TestLocal_SerializesOneProperty(t *testing.T) {
	l := lock.NewLocal(5 * time.Second)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithPropertyLock(context.Background(), 1, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestLocal_TimeoutIsLockTimeout(t *testing.T) {
	l := lock.NewLocal(20 * time.Millisecond)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithPropertyLock(context.Background(), 7, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	called := false
	err := l.WithPropertyLock(context.Background(), 7, func(ctx context.Context) error {
		called = true
		return nil
	})

	require.ErrorIs(t, err, repository.ErrLockTimeout)
	assert.False(t, called)
}

func TestLocal_DifferentPropertiesDoNotBlock(t *testing.T) {
	l := lock.NewLocal(time.Second)

	err := l.WithPropertyLock(context.Background(), 1, func(ctx context.Context) error {
		return l.WithPropertyLock(ctx, 2, func(ctx context.Context) error { return nil })
	})

	require.NoError(t, err)
}

func TestLocal_NestedCallIsReentrant(t *testing.T) {
	l := lock.NewLocal(50 * time.Millisecond)

	var ran []int64
	err := l.WithPropertyLock(context.Background(), 1, func(ctx context.Context) error {
		return l.WithPropertyLock(ctx, 1, func(ctx context.Context) error {
			ran = append(ran, 1)
			return l.WithPropertyLock(ctx, 2, func(ctx context.Context) error {
				ran = append(ran, 2)
				assert.True(t, lock.Held(ctx, 1))
				assert.True(t, lock.Held(ctx, 2))
				return nil
			})
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ran)

	// A fresh context does not inherit the hold.
	assert.False(t, lock.Held(context.Background(), 1))
	assert.NoError(t, l.WithPropertyLock(context.Background(), 1, func(ctx context.Context) error { return nil }))
}
