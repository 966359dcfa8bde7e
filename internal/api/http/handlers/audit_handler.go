package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/fleetops/authz-core/internal/repository"
	apperrors "github.com/fleetops/authz-core/pkg/util/errorutil"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditHandler lists persisted authorization decisions.
type AuditHandler struct {
	audits repository.AuditRepository
}

// NewAuditHandler constructs handler. audits may be nil when no database is configured.
func NewAuditHandler(audits repository.AuditRepository) *AuditHandler {
	return &AuditHandler{audits: audits}
}

// List handles GET /v1/audit/events.
func (h *AuditHandler) List(c *fiber.Ctx) error {
	if h.audits == nil {
		return apperrors.NewDomainError(apperrors.CodeDependencyUnavailable, "audit storage not configured", http.StatusServiceUnavailable, nil)
	}
	limit := c.QueryInt("limit", defaultAuditLimit)
	if limit <= 0 || limit > maxAuditLimit {
		return apperrors.NewValidationError("limit out of range", map[string]any{"min": 1, "max": maxAuditLimit})
	}

	events, err := h.audits.ListRecent(c.UserContext(), limit)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": events, "meta": fiber.Map{"limit": limit, "count": len(events)}})
}
