package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter throttles calls per credential before they reach the provider.
type Limiter interface {
	Allow(ctx context.Context, credential string) (bool, error)
}

// NoopLimiter allows all requests.
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) Allow(ctx context.Context, credential string) (bool, error) {
	return true, nil
}

const keyPrefix = "promptforge:ratelimit:"

// slidingWindow counts the calls in the last window and records the new one
// only when it fits, so denied calls do not extend the block.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
	local count = redis.call('ZCARD', key)
	local allowed = 0
	if count < limit then
		redis.call('ZADD', key, now, member)
		count = count + 1
		allowed = 1
	end
	redis.call('PEXPIRE', key, window * 2)

	local reset = now + window
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if oldest[2] then
		reset = tonumber(oldest[2]) + window
	end
	return {allowed, limit - count, reset}
`)

// RateLimiter is a Redis sliding-window limiter shared by every process
// using the same credentials.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows limit calls per credential per window.
// A limit <= 0 disables limiting.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{client: client, limit: limit, window: window, now: time.Now}
}

// Allow implements Limiter.
func (rl *RateLimiter) Allow(ctx context.Context, credential string) (bool, error) {
	allowed, _, _, err := rl.AllowWithDetails(ctx, credential)
	return allowed, err
}

// AllowWithDetails records a call for credential if it fits in the window.
// remaining is -1 and resetAt is zero when limiting is disabled.
func (rl *RateLimiter) AllowWithDetails(ctx context.Context, credential string) (allowed bool, remaining int, resetAt time.Time, err error) {
	if rl.limit <= 0 {
		return true, -1, time.Time{}, nil
	}

	now := rl.now().UnixMilli()
	res, err := slidingWindow.Run(ctx, rl.client,
		[]string{keyPrefix + credential},
		now, rl.window.Milliseconds(), rl.limit, fmt.Sprintf("%d:%s", now, uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(res) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: unexpected reply %v", res)
	}

	return res[0] == 1, int(res[1]), time.UnixMilli(res[2]), nil
}

// GetCurrentUsage returns the number of calls recorded in the current window.
func (rl *RateLimiter) GetCurrentUsage(ctx context.Context, credential string) (int64, error) {
	key := keyPrefix + credential
	windowStart := rl.now().Add(-rl.window).UnixMilli()

	if err := rl.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart)).Err(); err != nil {
		return 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := rl.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get current usage: %w", err)
	}
	return count, nil
}

// Reset clears the window of credential.
func (rl *RateLimiter) Reset(ctx context.Context, credential string) error {
	return rl.client.Del(ctx, keyPrefix+credential).Err()
}
