package auth

import (
	"context"
	"crypto"
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/fleetops/authz-core/internal/domain"
)

var (
	errMissingKid      = errors.New("token header missing kid")
	errUnexpectedType  = errors.New("unexpected token typ")
	errTokenUse        = errors.New("token_use mismatch")
	errClientIDInvalid = errors.New("client_id mismatch")
)

// KeyProvider resolves signing keys by key id.
type KeyProvider interface {
	Key(ctx context.Context, kid string) (crypto.PublicKey, error)
	ForceRefresh(ctx context.Context) (bool, error)
}

// VerifierConfig holds the expected token properties.
type VerifierConfig struct {
	Issuer      string
	Audience    string
	TokenUse    domain.TokenUse
	AllowedAlgs []string
	ClockSkew   time.Duration
	Now         func() time.Time
}

// VerifiedPayload holds claims whose signature, issuer, audience and expiry
// were checked. It can only be produced by TokenVerifier.
type VerifiedPayload struct {
	claims jwt.MapClaims
}

// TokenVerifier validates bearer tokens against the issuer's published keys.
type TokenVerifier struct {
	keys   KeyProvider
	cfg    VerifierConfig
	parser *jwt.Parser
}

// NewTokenVerifier builds a verifier. Construct once per process and share it.
func NewTokenVerifier(keys KeyProvider, cfg VerifierConfig) *TokenVerifier {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{jwt.SigningMethodRS256.Alg()}
	}
	if cfg.TokenUse == "" {
		cfg.TokenUse = domain.TokenUseID
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(cfg.AllowedAlgs),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithTimeFunc(cfg.Now),
	}
	// access tokens carry the app client in client_id instead of aud
	if cfg.TokenUse == domain.TokenUseID {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &TokenVerifier{keys: keys, cfg: cfg, parser: jwt.NewParser(opts...)}
}

// Verify checks the token and returns its verified payload. Every failure is a
// TokenInvalid AuthzError except key-set outages, which are UpstreamUnavailable.
func (v *TokenVerifier) Verify(ctx context.Context, tokenStr string) (VerifiedPayload, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return VerifiedPayload{}, domain.NewAuthzError(domain.KindTokenInvalid, errors.New("empty token"))
	}

	claims, err := v.parse(ctx, tokenStr)
	if err != nil && errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		// keys may have rotated under an existing kid
		if refreshed, refreshErr := v.keys.ForceRefresh(ctx); refreshErr == nil && refreshed {
			claims, err = v.parse(ctx, tokenStr)
		}
	}
	if err != nil {
		if errors.Is(err, ErrKeySetUnavailable) {
			return VerifiedPayload{}, domain.NewAuthzError(domain.KindUpstreamUnavailable, err)
		}
		return VerifiedPayload{}, domain.NewAuthzError(domain.KindTokenInvalid, err)
	}

	if use, _ := claims["token_use"].(string); use != string(v.cfg.TokenUse) {
		return VerifiedPayload{}, domain.NewAuthzError(domain.KindTokenInvalid, errTokenUse)
	}
	if v.cfg.TokenUse == domain.TokenUseAccess {
		if clientID, _ := claims["client_id"].(string); clientID == "" || clientID != v.cfg.Audience {
			return VerifiedPayload{}, domain.NewAuthzError(domain.KindTokenInvalid, errClientIDInvalid)
		}
	}

	return VerifiedPayload{claims: claims}, nil
}

func (v *TokenVerifier) parse(ctx context.Context, tokenStr string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := v.parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if typ, ok := token.Header["typ"].(string); ok && typ != "" && !strings.EqualFold(typ, "JWT") {
			return nil, errUnexpectedType
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errMissingKid
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}
