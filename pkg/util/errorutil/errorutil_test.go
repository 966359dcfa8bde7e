package errorutil

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/fleetops/authz-core/internal/domain"
)

func TestFromDecision_DenialsAreGeneric(t *testing.T) {
	kinds := []domain.ErrorKind{
		domain.KindTokenInvalid,
		domain.KindClaimsIncomplete,
		domain.KindInsufficientRole,
		domain.KindUpstreamUnavailable,
	}
	for _, kind := range kinds {
		err := FromDecision(domain.AuthorizationDecision{Reason: kind, CorrelationID: "c-1"})
		de := ToDomainError(err)
		if de.HTTPStatus != http.StatusUnauthorized || de.Code != CodeUnauthorized || de.Message != "unauthorized" {
			t.Fatalf("%s: expected generic unauthorized, got %+v", kind, de)
		}
		if _, leaked := de.Details["reason"]; leaked {
			t.Fatalf("%s: reason must not be exposed", kind)
		}
		if de.RetryAfter != 0 {
			t.Fatalf("%s: only rate limiting carries a retry hint", kind)
		}
	}
}

func TestFromDecision_RateLimitCarriesRetryHint(t *testing.T) {
	err := FromDecision(domain.AuthorizationDecision{
		Reason:        domain.KindRateLimitExceeded,
		RetryAfter:    1500 * time.Millisecond,
		CorrelationID: "c-2",
	})
	de := ToDomainError(err)
	if de.HTTPStatus != http.StatusTooManyRequests || de.Code != CodeRateLimited {
		t.Fatalf("unexpected error %+v", de)
	}
	if got := de.Details["retry_after_seconds"]; got != int64(2) {
		t.Fatalf("expected retry rounded up to 2s, got %v", got)
	}
}

func TestToDomainError_WrapsUnknown(t *testing.T) {
	de := ToDomainError(errors.New("boom"))
	if de.Code != CodeInternalError || de.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unexpected mapping %+v", de)
	}
	if ToDomainError(nil) != nil {
		t.Fatal("nil should map to nil")
	}
}

func TestFromStatus(t *testing.T) {
	cases := []struct {
		status int
		code   string
	}{
		{http.StatusNotFound, CodeNotFound},
		{http.StatusMethodNotAllowed, CodeBadRequest},
		{http.StatusServiceUnavailable, CodeDependencyUnavailable},
		{http.StatusInternalServerError, CodeInternalError},
	}
	for _, tc := range cases {
		de := FromStatus(tc.status, "boom")
		if de.Code != tc.code || de.HTTPStatus != tc.status {
			t.Fatalf("status %d: unexpected %+v", tc.status, de)
		}
	}
	if FromStatus(http.StatusBadGateway, "upstream said secret").Message != "internal server error" {
		t.Fatal("server errors must not echo their message")
	}
}
