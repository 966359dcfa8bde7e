package events

import (
	"time"

	"github.com/fleetops/authz-core/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAuthorizationDecided EventType = "authorization_decided"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID            string      `json:"id"`
	Type          EventType   `json:"type"`
	CorrelationID string      `json:"correlation_id"`
	Timestamp     time.Time   `json:"timestamp"`
	Payload       interface{} `json:"payload"`
}

// NewDecisionEvent wraps an audit record for publication.
func NewDecisionEvent(audit domain.AuditEvent) Event {
	return Event{
		ID:            audit.ID,
		Type:          EventAuthorizationDecided,
		CorrelationID: audit.CorrelationID,
		Timestamp:     audit.Timestamp,
		Payload:       audit,
	}
}

// AuditPayload returns the audit record carried by a decision event.
func (e Event) AuditPayload() (domain.AuditEvent, bool) {
	switch p := e.Payload.(type) {
	case domain.AuditEvent:
		return p, true
	case *domain.AuditEvent:
		if p == nil {
			return domain.AuditEvent{}, false
		}
		return *p, true
	default:
		return domain.AuditEvent{}, false
	}
}
