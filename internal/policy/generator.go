package policy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fleetops/authz-core/internal/domain"
	"github.com/fleetops/authz-core/internal/ratelimit"
)

// RateConsumer is the part of the rate limiter the generator needs.
type RateConsumer interface {
	TryConsume(ctx context.Context, principalID string, cost int64) (ratelimit.Result, error)
}

// Config configures a Generator.
type Config struct {
	// EmergencySubjects skip rate limiting; their decisions are still audited.
	EmergencySubjects []string
	NewID             func() string
	Now               func() time.Time
}

// Generator turns verified claims and a requested action into a decision.
type Generator struct {
	limiter   RateConsumer
	emergency map[string]struct{}
	newID     func() string
	now       func() time.Time
}

// NewGenerator builds a policy generator.
func NewGenerator(limiter RateConsumer, cfg Config) *Generator {
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	emergency := make(map[string]struct{}, len(cfg.EmergencySubjects))
	for _, subject := range cfg.EmergencySubjects {
		if subject != "" {
			emergency[subject] = struct{}{}
		}
	}
	return &Generator{limiter: limiter, emergency: emergency, newID: cfg.NewID, now: cfg.Now}
}

// Decide checks role sufficiency first and consults the rate limiter only for
// privileged actions, so callers without the role never consume quota.
func (g *Generator) Decide(ctx context.Context, claims domain.VerifiedClaims, action domain.ActionDescriptor) domain.AuthorizationDecision {
	decision := g.newDecision(claims)

	if claims.SubjectID == "" || !claims.Role.Valid() {
		return g.deny(decision, domain.NewAuthzError(domain.KindClaimsIncomplete, errors.New("incomplete principal")))
	}
	if action.Name == "" || !action.RequiredRole.Valid() {
		return g.deny(decision, domain.NewAuthzError(domain.KindInsufficientRole, errors.New("unknown action")))
	}
	if !claims.Role.Satisfies(action.RequiredRole) {
		return g.deny(decision, domain.NewAuthzError(domain.KindInsufficientRole, nil))
	}

	if action.Privileged {
		if _, ok := g.emergency[claims.SubjectID]; ok {
			decision.EmergencyBypass = true
		} else if g.limiter == nil {
			return g.deny(decision, domain.NewAuthzError(domain.KindUpstreamUnavailable, errors.New("no rate limiter configured")))
		} else if _, err := g.limiter.TryConsume(ctx, claims.SubjectID, 1); err != nil {
			return g.deny(decision, err)
		}
	}

	decision.Allow = true
	decision.Context = &domain.ForwardedContext{
		SubjectID:     claims.SubjectID,
		Email:         claims.Email,
		Role:          claims.Role,
		CorrelationID: decision.CorrelationID,
	}
	return decision
}

// Deny builds a denial for failures that happen before a policy decision,
// such as an invalid token.
func (g *Generator) Deny(claims domain.VerifiedClaims, err error) domain.AuthorizationDecision {
	if err == nil {
		err = domain.NewAuthzError(domain.KindTokenInvalid, nil)
	}
	return g.deny(g.newDecision(claims), err)
}

func (g *Generator) newDecision(claims domain.VerifiedClaims) domain.AuthorizationDecision {
	return domain.AuthorizationDecision{
		Principal:     claims,
		CorrelationID: g.newID(),
		DecidedAt:     g.now(),
	}
}

func (g *Generator) deny(decision domain.AuthorizationDecision, err error) domain.AuthorizationDecision {
	decision.Allow = false
	decision.Context = nil
	decision.Reason = domain.KindOf(err)
	if retry, ok := domain.RetryAfterOf(err); ok {
		decision.RetryAfter = retry
	}
	return decision
}
