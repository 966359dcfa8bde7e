package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errCapacityExceeded = errors.New("rate limiter capacity exceeded")

type memoryCounter struct {
	windowStart time.Time
	count       int64
}

// MemoryStore keeps counters in process. Correct only when every request for
// a principal is served by the same process.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	maxKeys  int
	now      func() time.Time
}

// MemoryStoreConfig configures a MemoryStore.
type MemoryStoreConfig struct {
	MaxKeys int
	Now     func() time.Time
}

// NewMemoryStore builds an in-process counter store.
func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 100000
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &MemoryStore{
		counters: make(map[string]*memoryCounter),
		maxKeys:  cfg.MaxKeys,
		now:      cfg.Now,
	}
}

// Increment adds cost to principalID's counter for the window starting at
// windowStart. A request stamped with an earlier window than the stored one is
// counted against the current window.
func (m *MemoryStore) Increment(_ context.Context, principalID string, windowStart time.Time, cost int64, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counter, ok := m.counters[principalID]
	if !ok {
		if len(m.counters) >= m.maxKeys {
			m.sweep(window)
		}
		if len(m.counters) >= m.maxKeys {
			return 0, errCapacityExceeded
		}
		counter = &memoryCounter{windowStart: windowStart}
		m.counters[principalID] = counter
	}
	if windowStart.After(counter.windowStart) {
		counter.windowStart = windowStart
		counter.count = 0
	}
	counter.count += cost
	return counter.count, nil
}

// sweep drops counters whose window has elapsed. Caller holds mu.
func (m *MemoryStore) sweep(window time.Duration) {
	now := m.now()
	for key, counter := range m.counters {
		if !now.Before(counter.windowStart.Add(window)) {
			delete(m.counters, key)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
