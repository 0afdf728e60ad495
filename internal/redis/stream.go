package redisx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultStreamMaxLen = 100_000

// TopicStream appends outbox messages to one Redis stream per topic. Entries
// persist until trimmed, so consumer groups that start later still read them.
type TopicStream struct {
	rdb    *redis.Client
	maxLen int64
}

// NewTopicStream trims each stream to roughly maxLen entries. Zero keeps the
// default.
func NewTopicStream(rdb *redis.Client, maxLen int64) *TopicStream {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &TopicStream{rdb: rdb, maxLen: maxLen}
}

// Publish adds one entry with the fields key, payload and headers (a JSON
// object).
func (s *TopicStream) Publish(
	ctx context.Context,
	topic, key string,
	payload []byte,
	headers map[string]string,
) error {
	const op = "redisx.TopicStream.Publish"

	h, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: KeyTopicStream(topic),
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"key":     key,
			"payload": string(payload),
			"headers": string(h),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
