package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// the counter key embeds the window start, so a new window is a new key and
// the TTL cleans up old ones
var incrementScript = redis.NewScript(`
local current = redis.call("INCRBY", KEYS[1], ARGV[1])
if current == tonumber(ARGV[1]) then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return current
`)

// RedisStore keeps counters in redis so all workers share one limit.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps client as a counter store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Increment atomically adds cost to the counter for (principalID, windowStart).
func (r *RedisStore) Increment(ctx context.Context, principalID string, windowStart time.Time, cost int64, window time.Duration) (int64, error) {
	windowMillis := window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1000
	}
	key := CounterKey(principalID, windowStart)

	result, err := incrementScript.Run(ctx, r.client, []string{key}, cost, windowMillis).Result()
	if err != nil {
		return 0, fmt.Errorf("rate limit increment: %w", err)
	}
	count, ok := result.(int64)
	if !ok {
		return 0, errors.New("unexpected redis rate limit response")
	}
	return count, nil
}

// CounterKey names the counter for principalID in the window starting at windowStart.
func CounterKey(principalID string, windowStart time.Time) string {
	return redisKeyPrefix + principalID + ":" + strconv.FormatInt(windowStart.Unix(), 10)
}

var _ Store = (*RedisStore)(nil)
