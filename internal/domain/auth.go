package domain

import "time"

// Role is the closed set of roles a verified caller can hold.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleReadonly Role = "readonly"
)

// ParseRole accepts only the exact lower-case role names; anything else is rejected.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleReadonly:
		return RoleReadonly, true
	default:
		return "", false
	}
}

// Satisfies reports whether r grants access to actions requiring required.
// admin satisfies both roles, readonly only satisfies readonly.
func (r Role) Satisfies(required Role) bool {
	switch r {
	case RoleAdmin:
		return required == RoleAdmin || required == RoleReadonly
	case RoleReadonly:
		return required == RoleReadonly
	default:
		return false
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// TokenUse designates which token type carries authoritative claims.
type TokenUse string

const (
	TokenUseID     TokenUse = "id"
	TokenUseAccess TokenUse = "access"
)

// VerifiedClaims is the identity extracted from a token whose signature and expiry passed.
type VerifiedClaims struct {
	SubjectID string    `json:"subject_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ForwardedContext is the only identity data handed to downstream business logic.
type ForwardedContext struct {
	SubjectID     string `json:"subject_id"`
	Email         string `json:"email"`
	Role          Role   `json:"role"`
	CorrelationID string `json:"correlation_id"`
}
