package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fleetops/authz-core/internal/domain"
	"github.com/fleetops/authz-core/internal/events"
	"github.com/fleetops/authz-core/internal/observability"
)

// AuditSink accepts audit events for persistence.
type AuditSink interface {
	Enqueue(event domain.AuditEvent) bool
}

// AuditService turns decision events into audit log lines and persisted records.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	sink       AuditSink
	metrics    *observability.Metrics
}

// NewAuditService creates the service. sink may be nil, in which case events are only logged.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger, sink AuditSink, metrics *observability.Metrics) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger,
		sink:       sink,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventAuthorizationDecided, a.handleAuthorizationDecided)
}

func (a *AuditService) handleAuthorizationDecided(_ context.Context, event events.Event) error {
	audit, ok := event.AuditPayload()
	if !ok {
		return errors.New("authorization event without audit payload")
	}

	a.logger.Info("AuthorizationDecided",
		zap.String("audit_id", audit.ID),
		zap.Time("timestamp", audit.Timestamp),
		zap.String("correlation_id", audit.CorrelationID),
		zap.String("request_id", audit.RequestID),
		zap.String("subject_id", audit.SubjectID),
		zap.String("action", audit.Action),
		zap.String("decision", audit.Decision),
		zap.String("reason", string(audit.Reason)),
		zap.Bool("emergency_bypass", audit.EmergencyBypass),
		zap.Bool("cache_hit", audit.CacheHit))

	if a.sink == nil {
		return nil
	}
	if !a.sink.Enqueue(audit) {
		a.metrics.RecordAuditDropped()
		a.logger.Warn("audit queue full; event not persisted", zap.String("correlation_id", audit.CorrelationID))
	}
	return nil
}
