package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies why a request was denied.
type ErrorKind string

const (
	KindTokenInvalid        ErrorKind = "TokenInvalid"
	KindClaimsIncomplete    ErrorKind = "ClaimsIncomplete"
	KindInsufficientRole    ErrorKind = "InsufficientRole"
	KindRateLimitExceeded   ErrorKind = "RateLimitExceeded"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
)

// AuthzError carries the precise denial kind through the pipeline.
type AuthzError struct {
	Kind       ErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *AuthzError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *AuthzError) Unwrap() error {
	return e.Err
}

// NewAuthzError wraps err with the given kind.
func NewAuthzError(kind ErrorKind, err error) *AuthzError {
	return &AuthzError{Kind: kind, Err: err}
}

// NewRateLimitError builds a RateLimitExceeded error with its retry hint.
func NewRateLimitError(retryAfter time.Duration) *AuthzError {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &AuthzError{Kind: KindRateLimitExceeded, RetryAfter: retryAfter}
}

// KindOf returns the denial kind for err. Errors that are not AuthzErrors are
// treated as UpstreamUnavailable so unknown failures deny.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var authzErr *AuthzError
	if errors.As(err, &authzErr) {
		return authzErr.Kind
	}
	return KindUpstreamUnavailable
}

// RetryAfterOf extracts the retry hint of a rate limit error.
func RetryAfterOf(err error) (time.Duration, bool) {
	var authzErr *AuthzError
	if errors.As(err, &authzErr) && authzErr.Kind == KindRateLimitExceeded {
		return authzErr.RetryAfter, true
	}
	return 0, false
}
