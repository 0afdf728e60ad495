package redisrepo_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisx "github.com/kirinyoku/calendar-engine/internal/redis"
	"github.com/kirinyoku/calendar-engine/internal/repository"
	redisrepo "github.com/kirinyoku/calendar-engine/internal/repository/redis"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type calendarView struct {
	Version int64    `json:"version"`
	Days    []string `json:"days"`
}

func TestCache_ReadThroughAndInvalidate(t *testing.T) {
	mr, rdb := newRedis(t)
	cache := redisrepo.New(rdb)
	ctx := context.Background()

	key := redisx.KeyCalendar(1, 10, "2026-01-01", "2026-01-08")
	index := redisx.KeyPropertyIndex(1, 10)

	var loads int32
	loader := func(ctx context.Context) (calendarView, error) {
		n := atomic.AddInt32(&loads, 1)
		return calendarView{Version: int64(n), Days: []string{"2026-01-01"}}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := redisrepo.GetOrSetJSON(ctx, cache, key, index, time.Minute, loader)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v.Version)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
	assert.True(t, mr.Exists(index))

	require.NoError(t, cache.InvalidateProperty(ctx, 1, 10))
	assert.False(t, mr.Exists(key))
	assert.False(t, mr.Exists(index))

	v, err := redisrepo.GetOrSetJSON(ctx, cache, key, index, time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.Version)
}

func TestCache_InvalidationIsPerProperty(t *testing.T) {
	mr, rdb := newRedis(t)
	cache := redisrepo.New(rdb)
	ctx := context.Background()

	load := func(ctx context.Context) (int, error) { return 7, nil }
	a := redisx.KeyPrice(1, 10, "2026-01-01", "", 2, 0, 1)
	b := redisx.KeyPrice(1, 11, "2026-01-01", "", 2, 0, 1)
	_, err := redisrepo.GetOrSetJSON(ctx, cache, a, redisx.KeyPropertyIndex(1, 10), time.Minute, load)
	require.NoError(t, err)
	_, err = redisrepo.GetOrSetJSON(ctx, cache, b, redisx.KeyPropertyIndex(1, 11), time.Minute, load)
	require.NoError(t, err)

	require.NoError(t, cache.InvalidateProperty(ctx, 1, 10))
	assert.False(t, mr.Exists(a))
	assert.True(t, mr.Exists(b))
}

func TestCache_LoaderErrorIsNotCached(t *testing.T) {
	mr, rdb := newRedis(t)
	cache := redisrepo.New(rdb)
	boom := errors.New("db down")

	_, err := redisrepo.GetOrSetJSON(context.Background(), cache, "k", "", time.Minute,
		func(ctx context.Context) (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k"))
}

func TestCache_EntriesExpire(t *testing.T) {
	mr, rdb := newRedis(t)
	cache := redisrepo.New(rdb)
	ctx := context.Background()

	var loads int
	load := func(ctx context.Context) (int, error) { loads++; return loads, nil }

	_, err := redisrepo.GetOrSetJSON(ctx, cache, "k", "", 15*time.Second, load)
	require.NoError(t, err)
	mr.FastForward(16 * time.Second)

	v, err := redisrepo.GetOrSetJSON(ctx, cache, "k", "", 15*time.Second, load)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestIdempotencyStore_Flow(t *testing.T) {
	mr, rdb := newRedis(t)
	store := redisrepo.NewIdempotencyStore(rdb, time.Hour)
	ctx := context.Background()
	key := redisx.KeyIdemCommand(1, 10, "abc")

	claim, err := store.Begin(ctx, key, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, redisrepo.ClaimAcquired, claim.State)
	assert.Equal(t, time.Minute, mr.TTL(key))

	other, err := store.Begin(ctx, key, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, redisrepo.ClaimInProgress, other.State)

	// The second caller never owned the key.
	assert.ErrorIs(t, store.Complete(ctx, key, other, []byte(`{}`)), redisrepo.ErrClaimLost)

	require.NoError(t, store.Complete(ctx, key, claim, []byte(`{"status":"EXECUTED"}`)))
	assert.Equal(t, time.Hour, mr.TTL(key))

	done, err := store.Begin(ctx, key, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, redisrepo.ClaimCompleted, done.State)
	assert.JSONEq(t, `{"status":"EXECUTED"}`, string(done.Response))

	reused, err := store.Begin(ctx, key, "fp-2")
	require.NoError(t, err)
	assert.Equal(t, redisrepo.ClaimMismatch, reused.State)
}

func TestIdempotencyStore_AbandonFreesKey(t *testing.T) {
	mr, rdb := newRedis(t)
	store := redisrepo.NewIdempotencyStore(rdb, time.Hour).WithClaimTTL(5 * time.Second)
	ctx := context.Background()
	key := redisx.KeyIdemCommand(1, 10, "xyz")

	claim, err := store.Begin(ctx, key, "fp")
	require.NoError(t, err)
	require.NoError(t, store.Abandon(ctx, key, claim))
	assert.False(t, mr.Exists(key))

	again, err := store.Begin(ctx, key, "fp")
	require.NoError(t, err)
	assert.Equal(t, redisrepo.ClaimAcquired, again.State)

	// An unfinished claim expires and the key can be taken again.
	mr.FastForward(6 * time.Second)
	third, err := store.Begin(ctx, key, "fp")
	require.NoError(t, err)
	assert.Equal(t, redisrepo.ClaimAcquired, third.State)

	assert.ErrorIs(t, store.Complete(ctx, key, again, []byte(`{}`)), redisrepo.ErrClaimLost)
}

func TestSlidingWindowLimiter(t *testing.T) {
	mr, rdb := newRedis(t)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "commands", 2, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		d, err := limiter.Allow(ctx, "org:1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(i), d.Hits)
	}

	d, err := limiter.Allow(ctx, "org:1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(2), d.Hits, "rejected hits are not counted")
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
	assert.True(t, mr.Exists(redisx.KeyRateLimit("commands", "org:1")))

	d, err = limiter.Allow(ctx, "org:2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestPropertyLock_Serializes(t *testing.T) {
	_, rdb := newRedis(t)
	l := redisrepo.NewPropertyLock(rdb, 5*time.Second)

	var inside, overlaps int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithPropertyLock(context.Background(), 1, func(ctx context.Context) error {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&overlaps))
}

func TestPropertyLock_Timeout(t *testing.T) {
	mr, rdb := newRedis(t)
	l := redisrepo.NewPropertyLock(rdb, 30*time.Millisecond)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithPropertyLock(context.Background(), 4, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ran := false
	err := l.WithPropertyLock(context.Background(), 4, func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, repository.ErrLockTimeout)
	assert.False(t, ran)

	close(release)
	require.Eventually(t, func() bool { return !mr.Exists(redisx.KeyPropertyLock(4)) },
		time.Second, 5*time.Millisecond)
}

func TestPropertyLock_ReturnsCallbackError(t *testing.T) {
	mr, rdb := newRedis(t)
	l := redisrepo.NewPropertyLock(rdb, time.Second)
	boom := errors.New("boom")

	err := l.WithPropertyLock(context.Background(), 5, func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(redisx.KeyPropertyLock(5)))
}

func TestPropertyLock_NestedCallIsReentrant(t *testing.T) {
	mr, rdb := newRedis(t)
	l := redisrepo.NewPropertyLock(rdb, 50*time.Millisecond)
	key := redisx.KeyPropertyLock(4)

	calls := 0
	err := l.WithPropertyLock(context.Background(), 4, func(ctx context.Context) error {
		return l.WithPropertyLock(ctx, 4, func(ctx context.Context) error {
			calls++
			assert.True(t, mr.Exists(key))
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, mr.Exists(key))
}
