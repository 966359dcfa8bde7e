package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fleetops/authz-core/internal/domain"
)

// MemoryConfig configures the in-process cache.
type MemoryConfig struct {
	MaxEntries int
	Ceiling    time.Duration
	Now        func() time.Time
}

// Memory is an in-process DecisionCache. Expiry is checked on every read;
// the LRU bound only protects memory under pressure.
type Memory struct {
	entries *lru.Cache[string, Entry]
	ceiling time.Duration
	now     func() time.Time
}

// NewMemory builds an in-process cache.
func NewMemory(cfg MemoryConfig) (*Memory, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	entries, err := lru.New[string, Entry](cfg.MaxEntries)
	if err != nil {
		return nil, err
	}
	return &Memory{entries: entries, ceiling: cfg.Ceiling, now: cfg.Now}, nil
}

// Get returns the entry for fingerprint while it is unexpired.
func (m *Memory) Get(_ context.Context, fingerprint string) (*Entry, bool, error) {
	entry, ok := m.entries.Get(fingerprint)
	if !ok {
		return nil, false, nil
	}
	if !entry.usable(m.now()) {
		m.entries.Remove(fingerprint)
		return nil, false, nil
	}
	return &entry, true, nil
}

// Put stores principal under fingerprint, capped by the token expiry and the ceiling.
func (m *Memory) Put(_ context.Context, fingerprint string, principal domain.VerifiedClaims, ttl time.Duration) error {
	now := m.now()
	expiresAt := entryExpiry(now, principal, ttl, m.ceiling)
	if !now.Before(expiresAt) {
		return nil
	}
	m.entries.Add(fingerprint, Entry{Principal: principal, ExpiresAt: expiresAt})
	return nil
}

// Len reports the number of stored entries, including expired ones not yet evicted.
func (m *Memory) Len() int {
	return m.entries.Len()
}

var _ DecisionCache = (*Memory)(nil)
