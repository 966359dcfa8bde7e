package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/fleetops/authz-core/internal/domain"
)

// Store is an atomic per-principal counter for fixed windows. Increment must
// reset the count when windowStart differs from the stored window and return
// the count after adding cost, as one atomic step.
type Store interface {
	Increment(ctx context.Context, principalID string, windowStart time.Time, cost int64, window time.Duration) (int64, error)
}

// Result describes the outcome of one TryConsume call.
type Result struct {
	Allowed     bool
	Limit       int64
	Remaining   int64
	WindowStart time.Time
	ResetAt     time.Time
	RetryAfter  time.Duration
}

// Config configures a Limiter.
type Config struct {
	Limit        int64
	Window       time.Duration
	StoreTimeout time.Duration
	Now          func() time.Time
}

// Limiter enforces N actions per fixed window per principal.
type Limiter struct {
	store   Store
	limit   int64
	window  time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NewLimiter builds a fixed-window limiter over store.
func NewLimiter(store Store, cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{store: store, limit: cfg.Limit, window: cfg.Window, timeout: cfg.StoreTimeout, now: cfg.Now}
}

// TryConsume records cost units for principalID in the current window. It
// returns a RateLimitExceeded AuthzError once the window's limit is used up,
// and UpstreamUnavailable when the store cannot be reached in time.
func (l *Limiter) TryConsume(ctx context.Context, principalID string, cost int64) (Result, error) {
	if principalID == "" {
		return Result{}, domain.NewAuthzError(domain.KindClaimsIncomplete, errors.New("principal id required"))
	}
	if cost <= 0 {
		cost = 1
	}

	now := l.now()
	windowStart := now.Truncate(l.window)
	resetAt := windowStart.Add(l.window)
	result := Result{Limit: l.limit, WindowStart: windowStart, ResetAt: resetAt}

	if l.limit <= 0 {
		result.RetryAfter = resetAt.Sub(now)
		return result, domain.NewRateLimitError(result.RetryAfter)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	count, err := l.store.Increment(ctx, principalID, windowStart, cost, l.window)
	if err != nil {
		return Result{}, domain.NewAuthzError(domain.KindUpstreamUnavailable, err)
	}

	result.Remaining = l.limit - count
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	if count > l.limit {
		result.RetryAfter = resetAt.Sub(now)
		return result, domain.NewRateLimitError(result.RetryAfter)
	}
	result.Allowed = true
	return result, nil
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}
