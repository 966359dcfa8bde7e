package auth

import (
	"context"
	"testing"

	"github.com/fleetops/authz-core/internal/domain"
)

func TestAuthenticate_ReturnsPrincipal(t *testing.T) {
	issuer := newTestIssuer(t)
	key, _ := testKeys(t)
	authn := NewAuthenticator(issuer.verifier(), NewClaimsExtractor("", ""))

	claims, err := authn.Authenticate(context.Background(), signToken(t, key, "kid-1", validClaims("readonly")))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if claims.SubjectID != "user-123" || claims.Role != domain.RoleReadonly || claims.Email != "ops@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestAuthenticate_PropagatesFailureKinds(t *testing.T) {
	issuer := newTestIssuer(t)
	key, _ := testKeys(t)
	authn := NewAuthenticator(issuer.verifier(), NewClaimsExtractor("", ""))

	_, err := authn.Authenticate(context.Background(), "not-a-token")
	assertKind(t, err, domain.KindTokenInvalid)

	noRole := validClaims("admin")
	delete(noRole, "custom:role")
	_, err = authn.Authenticate(context.Background(), signToken(t, key, "kid-1", noRole))
	assertKind(t, err, domain.KindClaimsIncomplete)
}
