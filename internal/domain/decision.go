package domain

import "time"

// ActionDescriptor describes the operation a caller wants to perform.
type ActionDescriptor struct {
	Name         string `json:"name" yaml:"name"`
	Resource     string `json:"resource" yaml:"resource"`
	RequiredRole Role   `json:"required_role" yaml:"required_role"`
	// Privileged actions are subject to rate limiting.
	Privileged bool `json:"privileged" yaml:"privileged"`
}

// AuthorizationRequest is the single inbound authorization-check call.
type AuthorizationRequest struct {
	Token  string
	Action ActionDescriptor
	// RequestID is caller supplied and only ever logged.
	RequestID string
}

// AuthorizationDecision is the terminal outcome for one request.
type AuthorizationDecision struct {
	Allow           bool
	Principal       VerifiedClaims
	Reason          ErrorKind
	CorrelationID   string
	RetryAfter      time.Duration
	EmergencyBypass bool
	CacheHit        bool
	DecidedAt       time.Time
	Context         *ForwardedContext
}

// Outcome renders the decision as ALLOWED or DENIED.
func (d AuthorizationDecision) Outcome() string {
	if d.Allow {
		return "ALLOWED"
	}
	return "DENIED"
}
