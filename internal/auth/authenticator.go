package auth

import (
	"context"

	"github.com/fleetops/authz-core/internal/domain"
)

// Authenticator chains token verification and claim extraction.
type Authenticator struct {
	verifier  *TokenVerifier
	extractor *ClaimsExtractor
}

// NewAuthenticator builds an authenticator.
func NewAuthenticator(verifier *TokenVerifier, extractor *ClaimsExtractor) *Authenticator {
	return &Authenticator{verifier: verifier, extractor: extractor}
}

// Authenticate returns the validated principal for token.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (domain.VerifiedClaims, error) {
	payload, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return domain.VerifiedClaims{}, err
	}
	return a.extractor.Extract(payload)
}
