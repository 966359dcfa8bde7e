package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/fleetops/authz-core/internal/domain"
	"github.com/fleetops/authz-core/internal/events"
	"github.com/fleetops/authz-core/internal/observability"
)

type fullSink struct{}

func (fullSink) Enqueue(domain.AuditEvent) bool { return false }

func TestAuditService_DropsAreCounted(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	metrics := observability.NewMetrics()
	NewAuditService(dispatcher, zap.NewNop(), fullSink{}, metrics).RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.NewDecisionEvent(domain.AuditEvent{ID: "a", Decision: "DENIED"}))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := metrics.Snapshot().AuditDropped; got != 1 {
		t.Fatalf("expected one dropped audit event, got %d", got)
	}
}

func TestAuditService_LogOnlyWithoutSink(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	NewAuditService(dispatcher, nil, nil, nil).RegisterHandlers()
	if err := dispatcher.Publish(context.Background(), events.NewDecisionEvent(domain.AuditEvent{ID: "a"})); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestAuditService_RejectsForeignPayload(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	NewAuditService(dispatcher, zap.NewNop(), nil, nil).RegisterHandlers()
	err := dispatcher.Publish(context.Background(), events.Event{Type: events.EventAuthorizationDecided, Payload: 42})
	if err == nil {
		t.Fatal("expected payload error")
	}
}
