package auth

import (
	"errors"
	"fmt"
	"net/mail"

	"github.com/fleetops/authz-core/internal/domain"
)

// ClaimsExtractor turns a verified payload into closed, validated claims.
type ClaimsExtractor struct {
	roleClaim  string
	emailClaim string
}

// NewClaimsExtractor builds an extractor reading the role and email from the named claims.
func NewClaimsExtractor(roleClaim, emailClaim string) *ClaimsExtractor {
	if roleClaim == "" {
		roleClaim = "custom:role"
	}
	if emailClaim == "" {
		emailClaim = "email"
	}
	return &ClaimsExtractor{roleClaim: roleClaim, emailClaim: emailClaim}
}

// Extract validates presence and shape of every required claim. There is no
// fallback role: an unknown role value rejects the claims entirely.
func (e *ClaimsExtractor) Extract(payload VerifiedPayload) (domain.VerifiedClaims, error) {
	if payload.claims == nil {
		return domain.VerifiedClaims{}, incomplete(errors.New("no verified claims"))
	}
	claims := payload.claims

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return domain.VerifiedClaims{}, incomplete(errors.New("sub claim required"))
	}

	email, ok := claims[e.emailClaim].(string)
	if !ok || email == "" {
		return domain.VerifiedClaims{}, incomplete(fmt.Errorf("%s claim required", e.emailClaim))
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return domain.VerifiedClaims{}, incomplete(fmt.Errorf("%s claim malformed", e.emailClaim))
	}

	rawRole, ok := claims[e.roleClaim].(string)
	if !ok {
		return domain.VerifiedClaims{}, incomplete(fmt.Errorf("%s claim required", e.roleClaim))
	}
	role, ok := domain.ParseRole(rawRole)
	if !ok {
		return domain.VerifiedClaims{}, incomplete(fmt.Errorf("%s claim has unknown value", e.roleClaim))
	}

	issuedAt, err := claims.GetIssuedAt()
	if err != nil || issuedAt == nil {
		return domain.VerifiedClaims{}, incomplete(errors.New("iat claim required"))
	}
	expiresAt, err := claims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return domain.VerifiedClaims{}, incomplete(errors.New("exp claim required"))
	}

	return domain.VerifiedClaims{
		SubjectID: subject,
		Email:     email,
		Role:      role,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}, nil
}

func incomplete(err error) error {
	return domain.NewAuthzError(domain.KindClaimsIncomplete, err)
}
