package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetops/authz-core/internal/cache"
	"github.com/fleetops/authz-core/internal/config"
	"github.com/fleetops/authz-core/internal/domain"
	"github.com/fleetops/authz-core/internal/events"
	"github.com/fleetops/authz-core/internal/observability"
)

// Authenticator verifies a raw token and returns its validated claims.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.VerifiedClaims, error)
}

// Fingerprinter derives the cache key for a token.
type Fingerprinter interface {
	Fingerprint(token string) string
}

// PolicyGenerator decides on verified claims.
type PolicyGenerator interface {
	Decide(ctx context.Context, claims domain.VerifiedClaims, action domain.ActionDescriptor) domain.AuthorizationDecision
	Deny(claims domain.VerifiedClaims, err error) domain.AuthorizationDecision
}

// AuthorizationService runs the per-request authorization pipeline.
type AuthorizationService struct {
	authn        Authenticator
	cache        cache.DecisionCache
	fingerprints Fingerprinter
	policy       PolicyGenerator
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	logger       *zap.Logger
	cacheTTL     time.Duration
	newID        func() string
}

// AuthorizationDependencies encapsulates collaborators for the authorization service.
type AuthorizationDependencies struct {
	Authenticator Authenticator
	Cache         cache.DecisionCache
	Fingerprinter Fingerprinter
	Policy        PolicyGenerator
	Dispatcher    events.Dispatcher
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

// NewAuthorizationService builds the service.
func NewAuthorizationService(cfg config.Config, deps AuthorizationDependencies) *AuthorizationService {
	decisionCache := deps.Cache
	if decisionCache == nil || cfg.Cache.Backend == config.BackendNone {
		decisionCache = cache.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthorizationService{
		authn:        deps.Authenticator,
		cache:        decisionCache,
		fingerprints: deps.Fingerprinter,
		policy:       deps.Policy,
		dispatcher:   deps.Dispatcher,
		metrics:      deps.Metrics,
		logger:       logger,
		cacheTTL:     cfg.Cache.TTL(),
		newID:        uuid.NewString,
	}
}

// Authorize resolves one request to ALLOWED or DENIED. Every outcome is
// published for audit; only successful verifications are cached.
func (s *AuthorizationService) Authorize(ctx context.Context, req domain.AuthorizationRequest) domain.AuthorizationDecision {
	decision := s.decide(ctx, req)
	s.record(ctx, req, decision)
	return decision
}

func (s *AuthorizationService) decide(ctx context.Context, req domain.AuthorizationRequest) domain.AuthorizationDecision {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return s.policy.Deny(domain.VerifiedClaims{}, domain.NewAuthzError(domain.KindTokenInvalid, errors.New("missing token")))
	}

	fingerprint := s.fingerprints.Fingerprint(token)
	claims, cacheHit := s.lookup(ctx, fingerprint)
	if !cacheHit {
		var err error
		claims, err = s.authn.Authenticate(ctx, token)
		if err != nil {
			return s.policy.Deny(domain.VerifiedClaims{}, err)
		}
	}

	decision := s.policy.Decide(ctx, claims, req.Action)
	decision.CacheHit = cacheHit
	if decision.Allow && !cacheHit {
		if err := s.cache.Put(ctx, fingerprint, claims, s.cacheTTL); err != nil {
			s.logger.Warn("decision cache store failed", zap.String("correlation_id", decision.CorrelationID), zap.Error(err))
		}
	}
	return decision
}

// lookup treats cache errors as misses so a cache outage only costs a
// re-verification.
func (s *AuthorizationService) lookup(ctx context.Context, fingerprint string) (domain.VerifiedClaims, bool) {
	entry, ok, err := s.cache.Get(ctx, fingerprint)
	if err != nil {
		s.logger.Warn("decision cache lookup failed", zap.Error(err))
		return domain.VerifiedClaims{}, false
	}
	if !ok || entry == nil {
		return domain.VerifiedClaims{}, false
	}
	return entry.Principal, true
}

func (s *AuthorizationService) record(ctx context.Context, req domain.AuthorizationRequest, decision domain.AuthorizationDecision) {
	s.metrics.RecordDecision(decision)

	audit := domain.AuditEvent{
		ID:              s.newID(),
		Timestamp:       decision.DecidedAt,
		CorrelationID:   decision.CorrelationID,
		RequestID:       req.RequestID,
		SubjectID:       decision.Principal.SubjectID,
		Action:          req.Action.Name,
		Decision:        decision.Outcome(),
		Reason:          decision.Reason,
		EmergencyBypass: decision.EmergencyBypass,
		CacheHit:        decision.CacheHit,
	}
	if audit.Timestamp.IsZero() {
		audit.Timestamp = time.Now().UTC()
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Publish(ctx, events.NewDecisionEvent(audit)); err != nil {
			s.logger.Error("publish audit event failed", zap.String("correlation_id", decision.CorrelationID), zap.Error(err))
		}
	}

	fields := []zap.Field{
		zap.String("correlation_id", decision.CorrelationID),
		zap.String("request_id", req.RequestID),
		zap.String("subject_id", decision.Principal.SubjectID),
		zap.String("action", req.Action.Name),
		zap.Bool("cache_hit", decision.CacheHit),
	}
	switch {
	case decision.Allow && decision.EmergencyBypass:
		s.logger.Warn("authorization allowed through emergency bypass", fields...)
		return
	case decision.Allow:
		s.logger.Debug("authorization allowed", fields...)
		return
	}
	s.logger.Info("authorization denied", append(fields, zap.String("reason", string(decision.Reason)))...)
}
