package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fleetops/authz-core/internal/api/dto"
	"github.com/fleetops/authz-core/internal/auth"
	"github.com/fleetops/authz-core/internal/domain"
	"github.com/fleetops/authz-core/internal/policy"
	apperrors "github.com/fleetops/authz-core/pkg/util/errorutil"
)

// AuthorizeHandler exposes the authorization check over HTTP.
type AuthorizeHandler struct {
	core    auth.Authorizer
	catalog *policy.Catalog
}

// NewAuthorizeHandler constructs handler.
func NewAuthorizeHandler(core auth.Authorizer, catalog *policy.Catalog) *AuthorizeHandler {
	return &AuthorizeHandler{core: core, catalog: catalog}
}

// Authorize handles POST /v1/authorize.
func (h *AuthorizeHandler) Authorize(c *fiber.Ctx) error {
	var req dto.AuthorizeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Action = strings.TrimSpace(req.Action)
	if req.Action == "" {
		return apperrors.NewValidationError("action required", map[string]any{"field": "action"})
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		token, _ = auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	}

	// unknown actions carry no required role and are denied by the core,
	// which keeps them in the audit trail
	action, ok := h.catalog.Lookup(req.Action)
	if !ok {
		action = domain.ActionDescriptor{Name: req.Action}
	}

	decision := h.core.Authorize(c.UserContext(), domain.AuthorizationRequest{
		Token:     token,
		Action:    action,
		RequestID: c.Get(fiber.HeaderXRequestID),
	})
	if !decision.Allow {
		return apperrors.FromDecision(decision)
	}
	return c.JSON(fiber.Map{"data": dto.NewAuthorizeResponse(decision)})
}
