package domain

import "time"

// AuditEvent is the structured record emitted for every terminal decision.
type AuditEvent struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	CorrelationID   string    `json:"correlation_id"`
	RequestID       string    `json:"request_id,omitempty"`
	SubjectID       string    `json:"subject_id,omitempty"`
	Action          string    `json:"action"`
	Decision        string    `json:"decision"`
	Reason          ErrorKind `json:"reason,omitempty"`
	EmergencyBypass bool      `json:"emergency_bypass"`
	CacheHit        bool      `json:"cache_hit"`
}
