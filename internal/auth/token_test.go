package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/fleetops/authz-core/internal/domain"
)

func TestVerify_ValidToken(t *testing.T) {
	issuer := newTestIssuer(t)
	key, _ := testKeys(t)
	token := signToken(t, key, "kid-1", validClaims("admin"))

	payload, err := issuer.verifier().Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sub, _ := payload.claims["sub"].(string); sub != "user-123" {
		t.Fatalf("unexpected subject %q", sub)
	}
}

func TestVerify_ExpiredOneSecondAgo(t *testing.T) {
	issuer := newTestIssuer(t)
	key, _ := testKeys(t)
	claims := validClaims("admin")
	claims["exp"] = time.Now().Add(-time.Second).Unix()

	_, err := issuer.verifier().Verify(context.Background(), signToken(t, key, "kid-1", claims))
	assertKind(t, err, domain.KindTokenInvalid)
}

func TestVerify_MissingExpiry(t *testing.T) {
	issuer := newTestIssuer(t)
	key, _ := testKeys(t)
	claims := validClaims("admin")
	delete(claims, "exp")

	_, err := issuer.verifier().Verify(context.Background(), signToken(t, key, "kid-1", claims))
	assertKind(t, err, domain.KindTokenInvalid)
}

func TestVerify_IssuerAndAudienceMismatch(t *testing.T) {
	issuer := newTestIssuer(t)
	key, _ := testKeys(t)
	verifier := issuer.verifier()

	wrongIss := validClaims("admin")
	wrongIss["iss"] = "https://evil.test"
	_, err := verifier.Verify(context.Background(), signToken(t, key, "kid-1", wrongIss))
	assertKind(t, err, domain.KindTokenInvalid)

	wrongAud := validClaims("admin")
	wrongAud["aud"] = "another-client"
	_, err = verifier.Verify(context.Background(), signToken(t, key, "kid-1", wrongAud))
	assertKind(t, err, domain.KindTokenInvalid)
}

func TestVerify_MalformedTokens(t *testing.T) {
	issuer := newTestIssuer(t)
	verifier := issuer.verifier()
	for _, raw := range []string{"", "   ", "abc", "a.b", "a.b.c", "!!!.???.***", "a.b.c.d"} {
		_, err := verifier.Verify(context.Background(), raw)
		assertKind(t, err, domain.KindTokenInvalid)
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	issuer := newTestIssuer(t)
	key, _ := testKeys(t)
	token := signToken(t, key, "kid-1", validClaims("readonly"))
	forged := signToken(t, key, "kid-1", validClaims("admin"))

	parts := strings.Split(token, ".")
	forgedParts := strings.Split(forged, ".")
	tampered := parts[0] + "." + forgedParts[1] + "." + parts[2]

	_, err := issuer.verifier().Verify(context.Background(), tampered)
	assertKind(t, err, domain.KindTokenInvalid)
}

func TestVerify_SignedByUnpublishedKey(t *testing.T) {
	issuer := newTestIssuer(t)
	_, other := testKeys(t)

	_, err := issuer.verifier().Verify(context.Background(), signToken(t, other, "kid-1", validClaims("admin")))
	assertKind(t, err, domain.KindTokenInvalid)
}

func TestVerify_RejectsNoneAndSymmetricAlgorithms(t *testing.T) {
	issuer := newTestIssuer(t)
	verifier := issuer.verifier()

	none := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims("admin"))
	none.Header["kid"] = "kid-1"
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	_, err = verifier.Verify(context.Background(), unsigned)
	assertKind(t, err, domain.KindTokenInvalid)

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("admin"))
	hs.Header["kid"] = "kid-1"
	symmetric, err := hs.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign hs256: %v", err)
	}
	_, err = verifier.Verify(context.Background(), symmetric)
	assertKind(t, err, domain.KindTokenInvalid)
}

func TestVerify_MissingKid(t *testing.T) {
	issuer := newTestIssuer(t)
	key, _ := testKeys(t)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims("admin"))
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = issuer.verifier().Verify(context.Background(), signed)
	assertKind(t, err, domain.KindTokenInvalid)
}

func TestVerify_WrongTokenUse(t *testing.T) {
	issuer := newTestIssuer(t)
	key, _ := testKeys(t)
	claims := validClaims("admin")
	claims["token_use"] = "access"

	_, err := issuer.verifier().Verify(context.Background(), signToken(t, key, "kid-1", claims))
	assertKind(t, err, domain.KindTokenInvalid)
}

func TestVerify_AccessTokenChecksClientID(t *testing.T) {
	issuer := newTestIssuer(t)
	key, _ := testKeys(t)
	verifier := NewTokenVerifier(issuer.keySet(KeySetOptions{}), VerifierConfig{
		Issuer:   testIssuerURL,
		Audience: testAudience,
		TokenUse: domain.TokenUseAccess,
	})

	claims := validClaims("admin")
	delete(claims, "aud")
	claims["token_use"] = "access"
	claims["client_id"] = testAudience
	if _, err := verifier.Verify(context.Background(), signToken(t, key, "kid-1", claims)); err != nil {
		t.Fatalf("verify access token: %v", err)
	}

	claims["client_id"] = "someone-else"
	_, err := verifier.Verify(context.Background(), signToken(t, key, "kid-1", claims))
	assertKind(t, err, domain.KindTokenInvalid)
}

func TestVerify_KeySetOutageIsUpstreamUnavailable(t *testing.T) {
	issuer := newTestIssuer(t)
	issuer.failing.Store(true)
	key, _ := testKeys(t)

	_, err := issuer.verifier().Verify(context.Background(), signToken(t, key, "kid-1", validClaims("admin")))
	assertKind(t, err, domain.KindUpstreamUnavailable)
}

func TestVerify_RotatedKeyIsPickedUp(t *testing.T) {
	issuer := newTestIssuer(t)
	primary, rotated := testKeys(t)
	verifier := NewTokenVerifier(issuer.keySet(KeySetOptions{MinRefreshInterval: time.Nanosecond}), VerifierConfig{
		Issuer:   testIssuerURL,
		Audience: testAudience,
		TokenUse: domain.TokenUseID,
	})

	if _, err := verifier.Verify(context.Background(), signToken(t, primary, "kid-1", validClaims("admin"))); err != nil {
		t.Fatalf("verify before rotation: %v", err)
	}

	issuer.publish("kid-2", rotated)
	if _, err := verifier.Verify(context.Background(), signToken(t, rotated, "kid-2", validClaims("admin"))); err != nil {
		t.Fatalf("verify after rotation: %v", err)
	}
	if got := issuer.fetches.Load(); got != 2 {
		t.Fatalf("expected one refresh for the new kid, got %d fetches", got)
	}
}
