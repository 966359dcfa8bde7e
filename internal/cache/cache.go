package cache

import (
	"context"
	"time"

	"github.com/fleetops/authz-core/internal/domain"
)

// DefaultCeiling bounds the lifetime of any cached decision.
const DefaultCeiling = 5 * time.Minute

// Entry is a cached successful verification.
type Entry struct {
	Principal domain.VerifiedClaims `json:"principal"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// DecisionCache maps token fingerprints to previously verified principals.
// It is a performance optimisation only; a miss always means full verification.
type DecisionCache interface {
	Get(ctx context.Context, fingerprint string) (*Entry, bool, error)
	Put(ctx context.Context, fingerprint string, principal domain.VerifiedClaims, ttl time.Duration) error
}

// entryExpiry returns when an entry stored at now must expire: the earliest of
// the requested ttl, the ceiling and the token's own expiry.
func entryExpiry(now time.Time, principal domain.VerifiedClaims, ttl, ceiling time.Duration) time.Time {
	if ceiling <= 0 || ceiling > DefaultCeiling {
		ceiling = DefaultCeiling
	}
	if ttl <= 0 || ttl > ceiling {
		ttl = ceiling
	}
	expiresAt := now.Add(ttl)
	if !principal.ExpiresAt.IsZero() && principal.ExpiresAt.Before(expiresAt) {
		expiresAt = principal.ExpiresAt
	}
	return expiresAt
}

// usable reports whether e may still be served at now.
func (e *Entry) usable(now time.Time) bool {
	if e == nil {
		return false
	}
	if !now.Before(e.ExpiresAt) {
		return false
	}
	return e.Principal.ExpiresAt.IsZero() || now.Before(e.Principal.ExpiresAt)
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (*Entry, bool, error) { return nil, false, nil }

func (Nop) Put(context.Context, string, domain.VerifiedClaims, time.Duration) error { return nil }

var _ DecisionCache = Nop{}
