package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fleetops/authz-core/internal/domain"
)

const redisKeyPrefix = "authz:decision:"

// RedisConfig configures the shared cache.
type RedisConfig struct {
	Ceiling time.Duration
	Timeout time.Duration
	Now     func() time.Time
}

// Redis is a DecisionCache shared between workers.
type Redis struct {
	client  redis.UniversalClient
	ceiling time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NewRedis wraps client as a DecisionCache.
func NewRedis(client redis.UniversalClient, cfg RedisConfig) *Redis {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Redis{client: client, ceiling: cfg.Ceiling, timeout: cfg.Timeout, now: cfg.Now}
}

// Get returns the entry for fingerprint while it is unexpired.
func (r *Redis) Get(ctx context.Context, fingerprint string) (*Entry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.client.Get(ctx, redisKeyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("decision cache get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("decision cache decode: %w", err)
	}
	if !entry.usable(r.now()) {
		return nil, false, nil
	}
	return &entry, true, nil
}

// Put stores principal under fingerprint with a redis TTL matching the entry expiry.
func (r *Redis) Put(ctx context.Context, fingerprint string, principal domain.VerifiedClaims, ttl time.Duration) error {
	now := r.now()
	expiresAt := entryExpiry(now, principal, ttl, r.ceiling)
	remaining := expiresAt.Sub(now)
	if remaining < time.Millisecond {
		return nil
	}

	raw, err := json.Marshal(Entry{Principal: principal, ExpiresAt: expiresAt})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Set(ctx, redisKeyPrefix+fingerprint, raw, remaining).Err(); err != nil {
		return fmt.Errorf("decision cache put: %w", err)
	}
	return nil
}

var _ DecisionCache = (*Redis)(nil)
