package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/fleetops/authz-core/internal/domain"
	apperrors "github.com/fleetops/authz-core/pkg/util/errorutil"
)

type stubAuthorizer struct {
	decision domain.AuthorizationDecision
	last     domain.AuthorizationRequest
	calls    int
}

func (s *stubAuthorizer) Authorize(_ context.Context, req domain.AuthorizationRequest) domain.AuthorizationDecision {
	s.calls++
	s.last = req
	return s.decision
}

func newTestApp(core Authorizer, action domain.ActionDescriptor, handler fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"error": fiber.Map{"code": de.Code}})
		},
	})
	app.Get("/protected", NewAuthzMiddleware(core).Require(action), handler)
	return app
}

func TestMiddleware_AllowInjectsForwardedContext(t *testing.T) {
	forwarded := domain.ForwardedContext{SubjectID: "user-1", Email: "a@example.com", Role: domain.RoleAdmin, CorrelationID: "c-1"}
	core := &stubAuthorizer{decision: domain.AuthorizationDecision{Allow: true, Context: &forwarded}}
	action := domain.ActionDescriptor{Name: "instances:list", RequiredRole: domain.RoleReadonly}

	var fromLocals, fromCtx domain.ForwardedContext
	app := newTestApp(core, action, func(c *fiber.Ctx) error {
		fromLocals, _ = ForwardedFromFiber(c)
		fromCtx, _ = ForwardedFromContext(c.UserContext())
		return c.SendStatus(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	req.Header.Set(fiber.HeaderXRequestID, "req-9")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if fromLocals != forwarded || fromCtx != forwarded {
		t.Fatalf("forwarded context not injected: %+v %+v", fromLocals, fromCtx)
	}
	if core.last.Token != "tok-1" || core.last.RequestID != "req-9" || core.last.Action.Name != "instances:list" {
		t.Fatalf("unexpected request %+v", core.last)
	}
}

func TestMiddleware_DenyStopsChain(t *testing.T) {
	core := &stubAuthorizer{decision: domain.AuthorizationDecision{Reason: domain.KindTokenInvalid}}
	called := false
	app := newTestApp(core, domain.ActionDescriptor{Name: "instances:list"}, func(c *fiber.Ctx) error {
		called = true
		return nil
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/protected", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if called {
		t.Fatal("downstream handler must not run on deny")
	}
	if core.calls != 1 || core.last.Token != "" {
		t.Fatalf("missing header must still be decided, got %+v", core.last)
	}
}

func TestMiddleware_RateLimitedDenial(t *testing.T) {
	core := &stubAuthorizer{decision: domain.AuthorizationDecision{Reason: domain.KindRateLimitExceeded}}
	app := newTestApp(core, domain.ActionDescriptor{Name: "instances:reboot"}, func(c *fiber.Ctx) error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != apperrors.CodeRateLimited {
		t.Fatalf("unexpected code %q", body.Error.Code)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"Bearer   ":    "",
		"":             "",
	}
	for header, want := range cases {
		got, ok := BearerToken(header)
		if got != want || ok != (want != "") {
			t.Fatalf("%q: got %q ok=%v", header, got, ok)
		}
	}
}
