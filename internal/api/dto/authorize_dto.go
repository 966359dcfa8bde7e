package dto

import "github.com/fleetops/authz-core/internal/domain"

// AuthorizeRequest payload for an authorization check. The token may instead
// be sent as a bearer Authorization header.
type AuthorizeRequest struct {
	Token  string `json:"token"`
	Action string `json:"action"`
}

// ForwardedContextResponse is the identity handed to downstream consumers.
type ForwardedContextResponse struct {
	SubjectID     string `json:"subject_id"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	CorrelationID string `json:"correlation_id"`
}

// AuthorizeResponse is returned for allowed checks.
type AuthorizeResponse struct {
	Allow           bool                      `json:"allow"`
	CorrelationID   string                    `json:"correlation_id"`
	EmergencyBypass bool                      `json:"emergency_bypass,omitempty"`
	Context         *ForwardedContextResponse `json:"context"`
}

// NewForwardedContextResponse converts the domain context.
func NewForwardedContextResponse(fc domain.ForwardedContext) *ForwardedContextResponse {
	return &ForwardedContextResponse{
		SubjectID:     fc.SubjectID,
		Email:         fc.Email,
		Role:          string(fc.Role),
		CorrelationID: fc.CorrelationID,
	}
}

// NewAuthorizeResponse renders an allowed decision.
func NewAuthorizeResponse(decision domain.AuthorizationDecision) AuthorizeResponse {
	resp := AuthorizeResponse{
		Allow:           decision.Allow,
		CorrelationID:   decision.CorrelationID,
		EmergencyBypass: decision.EmergencyBypass,
	}
	if decision.Context != nil {
		resp.Context = NewForwardedContextResponse(*decision.Context)
	}
	return resp
}
