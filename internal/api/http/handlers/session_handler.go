package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fleetops/authz-core/internal/api/dto"
	"github.com/fleetops/authz-core/internal/auth"
	apperrors "github.com/fleetops/authz-core/pkg/util/errorutil"
)

// SessionHandler returns the identity injected by the authorization middleware.
type SessionHandler struct{}

// NewSessionHandler constructs handler.
func NewSessionHandler() *SessionHandler {
	return &SessionHandler{}
}

// Get handles GET /v1/session.
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	forwarded, ok := auth.ForwardedFromContext(c.UserContext())
	if !ok {
		return apperrors.NewUnauthorized("unauthorized")
	}
	return c.JSON(fiber.Map{"data": dto.NewForwardedContextResponse(forwarded)})
}
