package redisrepo

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	redisx "github.com/kirinyoku/calendar-engine/internal/redis"
	"github.com/redis/go-redis/v9"
)

// luaSlidingWindow records one hit in a sorted set scored by milliseconds
// and returns {allowed, hits, retry_ms}. A rejected hit is removed again so
// that it does not extend the caller's penalty.
const luaSlidingWindow = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now - window)
redis.call('ZADD', KEYS[1], now, ARGV[4])
local hits = redis.call('ZCARD', KEYS[1])
redis.call('PEXPIRE', KEYS[1], window)

if hits <= limit then
  return {1, hits, 0}
end

redis.call('ZREM', KEYS[1], ARGV[4])
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local retry = window
if oldest[2] then
  retry = window - (now - tonumber(oldest[2]))
end
if retry < 0 then retry = 0 end
return {0, hits - 1, retry}
`

// Decision is the outcome of one rate-limited request.
type Decision struct {
	Allowed    bool
	Hits       int64
	RetryAfter time.Duration
}

// SlidingWindowLimiter admits at most limit requests per subject within
// window. Subjects of one scope share a key prefix, e.g. "commands".
type SlidingWindowLimiter struct {
	rdb    *redis.Client
	scope  string
	limit  int
	window time.Duration
	script *redis.Script
	now    func() time.Time
}

func NewSlidingWindowLimiter(rdb *redis.Client, scope string, limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		rdb:    rdb,
		scope:  scope,
		limit:  limit,
		window: window,
		script: redis.NewScript(luaSlidingWindow),
		now:    time.Now,
	}
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, subject string) (Decision, error) {
	const op = "redisrepo.SlidingWindowLimiter.Allow"

	res, err := l.script.Run(ctx, l.rdb,
		[]string{redisx.KeyRateLimit(l.scope, subject)},
		l.now().UnixMilli(), l.window.Milliseconds(), l.limit, randomHex(12),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%s: unexpected script result %v", op, res)
	}

	return Decision{
		Allowed:    res[0] == 1,
		Hits:       res[1],
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
