package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseRole_RejectsUnknownValues(t *testing.T) {
	for _, raw := range []string{"", "superuser", "Admin", "READONLY", " admin", "admin "} {
		if role, ok := ParseRole(raw); ok {
			t.Fatalf("expected %q to be rejected, got %q", raw, role)
		}
	}
	if role, ok := ParseRole("admin"); !ok || role != RoleAdmin {
		t.Fatalf("expected admin, got %q ok=%v", role, ok)
	}
	if role, ok := ParseRole("readonly"); !ok || role != RoleReadonly {
		t.Fatalf("expected readonly, got %q ok=%v", role, ok)
	}
}

func TestRoleSatisfies_AdminIsSuperset(t *testing.T) {
	roles := []Role{RoleAdmin, RoleReadonly}
	for _, required := range roles {
		if RoleReadonly.Satisfies(required) && !RoleAdmin.Satisfies(required) {
			t.Fatalf("admin must satisfy everything readonly satisfies (%s)", required)
		}
	}
	if RoleReadonly.Satisfies(RoleAdmin) {
		t.Fatal("readonly must not satisfy admin")
	}
	if Role("").Satisfies(RoleReadonly) {
		t.Fatal("empty role must not satisfy anything")
	}
}

func TestKindOf_UnknownErrorsFailClosed(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindUpstreamUnavailable {
		t.Fatalf("expected UpstreamUnavailable, got %s", got)
	}
	wrapped := NewAuthzError(KindClaimsIncomplete, errors.New("missing sub"))
	if got := KindOf(wrapped); got != KindClaimsIncomplete {
		t.Fatalf("expected ClaimsIncomplete, got %s", got)
	}
	if got := KindOf(nil); got != "" {
		t.Fatalf("expected empty kind for nil, got %s", got)
	}
}

func TestRetryAfterOf(t *testing.T) {
	retry, ok := RetryAfterOf(NewRateLimitError(12 * time.Second))
	if !ok || retry != 12*time.Second {
		t.Fatalf("unexpected retry hint %v ok=%v", retry, ok)
	}
	if _, ok := RetryAfterOf(NewAuthzError(KindTokenInvalid, nil)); ok {
		t.Fatal("only rate limit errors carry a retry hint")
	}
	if retry, _ := RetryAfterOf(NewRateLimitError(-time.Second)); retry != 0 {
		t.Fatalf("negative retry must clamp to zero, got %v", retry)
	}
}
