package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/authz-core/internal/domain"
)

// AuditRepository stores authorization decisions.
type AuditRepository interface {
	Insert(ctx context.Context, event *domain.AuditEvent) error
	ListRecent(ctx context.Context, limit int) ([]domain.AuditEvent, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Insert(ctx context.Context, event *domain.AuditEvent) error {
	const query = `
        INSERT INTO authz_audit_events
            (id, occurred_at, correlation_id, request_id, subject_id, action, decision, reason, emergency_bypass, cache_hit)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.Timestamp,
		event.CorrelationID,
		event.RequestID,
		event.SubjectID,
		event.Action,
		event.Decision,
		string(event.Reason),
		event.EmergencyBypass,
		event.CacheHit,
	)
	return err
}

func (r *auditRepository) ListRecent(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	const query = `
        SELECT id, occurred_at, correlation_id, request_id, subject_id, action, decision, reason, emergency_bypass, cache_hit
        FROM authz_audit_events ORDER BY occurred_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEvent
	for rows.Next() {
		var (
			event  domain.AuditEvent
			reason string
		)
		if err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&event.CorrelationID,
			&event.RequestID,
			&event.SubjectID,
			&event.Action,
			&event.Decision,
			&reason,
			&event.EmergencyBypass,
			&event.CacheHit,
		); err != nil {
			return nil, err
		}
		event.Reason = domain.ErrorKind(reason)
		result = append(result, event)
	}
	return result, rows.Err()
}
