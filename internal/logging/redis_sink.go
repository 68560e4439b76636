package logging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// appendCapped pushes a record and trims the list to the newest max_size entries.
var appendCapped = redis.NewScript(`
	local key = KEYS[1]
	local value = ARGV[1]
	local max_size = tonumber(ARGV[2])

	redis.call('RPUSH', key, value)
	local len = redis.call('LLEN', key)
	if max_size > 0 and len > max_size then
		redis.call('LTRIM', key, len - max_size, -1)
	end
	return len
`)

// RedisSink appends attempt records to a capped Redis list so several
// workers can share one audit trail.
type RedisSink struct {
	client  *redis.Client
	key     string
	maxSize int64
}

// NewRedisSink writes to the list at key, keeping at most maxSize entries (0 = unlimited).
func NewRedisSink(client *redis.Client, key string, maxSize int64) *RedisSink {
	return &RedisSink{client: client, key: key, maxSize: maxSize}
}

// Enqueue adds a record to the list
func (s *RedisSink) Enqueue(rec *AttemptRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt record: %w", err)
	}
	if err := appendCapped.Run(context.Background(), s.client, []string{s.key}, data, s.maxSize).Err(); err != nil {
		return fmt.Errorf("failed to enqueue attempt record: %w", err)
	}
	return nil
}

// Recent returns up to count of the newest records, oldest first
func (s *RedisSink) Recent(ctx context.Context, count int64) ([]*AttemptRecord, error) {
	values, err := s.client.LRange(ctx, s.key, -count, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read attempt records: %w", err)
	}

	records := make([]*AttemptRecord, 0, len(values))
	for _, v := range values {
		var rec AttemptRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			Warningf("skipping malformed attempt record: %v", err)
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

// Shutdown is a no-op; the Redis client is owned by the caller
func (s *RedisSink) Shutdown(ctx context.Context) error {
	return nil
}
