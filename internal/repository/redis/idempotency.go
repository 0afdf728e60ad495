package redisrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrClaimLost = errors.New("idempotency claim lost")

type ClaimState string

const (
	// ClaimAcquired means the caller owns the key and must Complete or Abandon it.
	ClaimAcquired ClaimState = "acquired"
	// ClaimInProgress means another request with the same key is still running.
	ClaimInProgress ClaimState = "pending"
	// ClaimCompleted means the key already has a stored response.
	ClaimCompleted ClaimState = "done"
	// ClaimMismatch means the key was used for a different request.
	ClaimMismatch ClaimState = "mismatch"
)

// Claim is the outcome of Begin. Response is set for ClaimCompleted.
type Claim struct {
	State    ClaimState
	Response []byte
	token    string
}

// Each key is a hash {state, fp, token, body}. A pending claim expires after
// the claim TTL so a crashed request frees its key.
var beginScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then
  redis.call('HSET', KEYS[1], 'state', 'pending', 'fp', ARGV[2], 'token', ARGV[1])
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
  return {'acquired', ''}
end
if redis.call('HGET', KEYS[1], 'fp') ~= ARGV[2] then
  return {'mismatch', ''}
end
if state == 'done' then
  return {'done', redis.call('HGET', KEYS[1], 'body')}
end
return {'pending', ''}
`)

var completeScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'token') ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'state', 'done', 'body', ARGV[2])
redis.call('HDEL', KEYS[1], 'token')
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

var abandonScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'token') == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// IdempotencyStore remembers the response of a command sent with an
// Idempotency-Key. A key is bound to the fingerprint of the first request
// that used it.
type IdempotencyStore struct {
	rdb      *redis.Client
	ttl      time.Duration
	claimTTL time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl, claimTTL: time.Minute}
}

// WithClaimTTL sets how long an unfinished claim holds its key.
func (s *IdempotencyStore) WithClaimTTL(d time.Duration) *IdempotencyStore {
	s.claimTTL = d
	return s
}

func (s *IdempotencyStore) Begin(ctx context.Context, key, fingerprint string) (Claim, error) {
	const op = "redisrepo.IdempotencyStore.Begin"

	token := randomHex(16)
	res, err := beginScript.Run(ctx, s.rdb, []string{key}, token, fingerprint, s.claimTTL.Milliseconds()).StringSlice()
	if err != nil {
		return Claim{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(res) != 2 {
		return Claim{}, fmt.Errorf("%s: unexpected reply %v", op, res)
	}

	c := Claim{State: ClaimState(res[0])}
	switch c.State {
	case ClaimAcquired:
		c.token = token
	case ClaimCompleted:
		c.Response = []byte(res[1])
	}
	return c, nil
}

// Complete stores response under a claim acquired by Begin.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, c Claim, response []byte) error {
	const op = "redisrepo.IdempotencyStore.Complete"

	n, err := completeScript.Run(ctx, s.rdb, []string{key}, c.token, response, s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrClaimLost)
	}
	return nil
}

// Abandon frees a claim whose request failed so the key can be retried.
func (s *IdempotencyStore) Abandon(ctx context.Context, key string, c Claim) error {
	const op = "redisrepo.IdempotencyStore.Abandon"

	if err := abandonScript.Run(ctx, s.rdb, []string{key}, c.token).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
