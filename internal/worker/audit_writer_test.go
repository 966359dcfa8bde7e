package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fleetops/authz-core/internal/domain"
)

type memoryAuditStore struct {
	mu      sync.Mutex
	events  []domain.AuditEvent
	block   chan struct{}
	failing bool
}

func (s *memoryAuditStore) Insert(_ context.Context, event *domain.AuditEvent) error {
	if s.block != nil {
		<-s.block
	}
	if s.failing {
		return errors.New("db down")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *memoryAuditStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestAuditWriter_PersistsAndDrainsOnStop(t *testing.T) {
	store := &memoryAuditStore{}
	w := NewAuditWriter(store, 16, nil)
	w.Start(context.Background())

	for i := 0; i < 10; i++ {
		if !w.Enqueue(domain.AuditEvent{ID: "evt", Decision: "ALLOWED"}) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := store.count(); got != 10 {
		t.Fatalf("expected 10 persisted events, got %d", got)
	}
	if w.Enqueue(domain.AuditEvent{ID: "late"}) {
		t.Fatal("enqueue after stop must be rejected")
	}
}

func TestAuditWriter_FullQueueDropsWithoutBlocking(t *testing.T) {
	store := &memoryAuditStore{block: make(chan struct{})}
	w := NewAuditWriter(store, 1, nil)
	w.Start(context.Background())

	accepted := 0
	for i := 0; i < 5; i++ {
		if w.Enqueue(domain.AuditEvent{ID: "evt"}) {
			accepted++
		}
	}
	if accepted == 5 {
		t.Fatal("expected some events to be dropped with a blocked store")
	}
	close(store.block)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if store.count() != accepted {
		t.Fatalf("expected %d persisted, got %d", accepted, store.count())
	}
}

func TestAuditWriter_StoreFailureKeepsRunning(t *testing.T) {
	store := &memoryAuditStore{failing: true}
	w := NewAuditWriter(store, 4, nil)
	w.Start(context.Background())
	w.Enqueue(domain.AuditEvent{ID: "a"})
	w.Enqueue(domain.AuditEvent{ID: "b"})
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestAuditWriter_StopWithoutStart(t *testing.T) {
	w := NewAuditWriter(&memoryAuditStore{}, 4, nil)
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
