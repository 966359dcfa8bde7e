package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fleetops/authz-core/internal/domain"
	apperrors "github.com/fleetops/authz-core/pkg/util/errorutil"
)

const forwardedContextKey = "authz_forwarded_context"

type ctxKey struct{}

// Authorizer runs the authorization pipeline for one request.
type Authorizer interface {
	Authorize(ctx context.Context, req domain.AuthorizationRequest) domain.AuthorizationDecision
}

// AuthzMiddleware guards downstream routes with the authorization core.
type AuthzMiddleware struct {
	core Authorizer
}

// NewAuthzMiddleware constructs middleware.
func NewAuthzMiddleware(core Authorizer) *AuthzMiddleware {
	return &AuthzMiddleware{core: core}
}

// Require enforces a decision for action and injects the forwarded context on allow.
func (m *AuthzMiddleware) Require(action domain.ActionDescriptor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// a missing header still runs the pipeline so the denial is audited
		token, _ := BearerToken(c.Get(fiber.HeaderAuthorization))

		decision := m.core.Authorize(c.UserContext(), domain.AuthorizationRequest{
			Token:     token,
			Action:    action,
			RequestID: c.Get(fiber.HeaderXRequestID),
		})
		if !decision.Allow || decision.Context == nil {
			return apperrors.FromDecision(decision)
		}

		forwarded := *decision.Context
		c.Locals(forwardedContextKey, forwarded)
		c.SetUserContext(WithForwardedContext(c.UserContext(), forwarded))
		return c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// ForwardedFromFiber retrieves the context injected by Require.
func ForwardedFromFiber(c *fiber.Ctx) (domain.ForwardedContext, bool) {
	val, ok := c.Locals(forwardedContextKey).(domain.ForwardedContext)
	return val, ok
}

// WithForwardedContext attaches the forwarded identity to ctx.
func WithForwardedContext(ctx context.Context, fc domain.ForwardedContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, fc)
}

// ForwardedFromContext returns the identity attached by WithForwardedContext.
func ForwardedFromContext(ctx context.Context) (domain.ForwardedContext, bool) {
	fc, ok := ctx.Value(ctxKey{}).(domain.ForwardedContext)
	return fc, ok
}
