package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fleetops/authz-core/internal/api/http/handlers"
	"github.com/fleetops/authz-core/internal/auth"
	"github.com/fleetops/authz-core/internal/domain"
	"github.com/fleetops/authz-core/internal/policy"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Authorize      *handlers.AuthorizeHandler
	Session        *handlers.SessionHandler
	Audit          *handlers.AuditHandler
	Metrics        *handlers.MetricsHandler
	AuthMiddleware *auth.AuthzMiddleware
	Catalog        *policy.Catalog
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	require := func(name string) fiber.Handler {
		return cfg.AuthMiddleware.Require(routeAction(cfg.Catalog, name))
	}

	app.Get("/metrics", require(policy.ActionMetricsRead), cfg.Metrics.Get)

	v1 := app.Group("/v1")
	v1.Post("/authorize", cfg.Authorize.Authorize)
	v1.Get("/session", require(policy.ActionSessionContext), cfg.Session.Get)
	v1.Get("/audit/events", require(policy.ActionAuditRead), cfg.Audit.List)
}

// routeAction prefers the configured catalog and falls back to the built-in
// descriptor so a trimmed catalog file cannot open a route.
func routeAction(catalog *policy.Catalog, name string) domain.ActionDescriptor {
	if catalog != nil {
		if action, ok := catalog.Lookup(name); ok {
			return action
		}
	}
	return policy.DefaultCatalog().MustLookup(name)
}
