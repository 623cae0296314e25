package goGuard

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/goGuard/authz"
	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/token"
)

var (
	// ErrInvalidCredentials covers every login and refresh failure the
	// caller must not be able to tell apart: unknown user, wrong password,
	// bad or superseded refresh token.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrExpiredToken is returned when an access token has expired.
	ErrExpiredToken = token.ErrExpiredToken
	// ErrInvalidSignature is returned when a token signature does not verify.
	ErrInvalidSignature = token.ErrInvalidSignature
	// ErrMalformedToken is returned when a token cannot be parsed.
	ErrMalformedToken = token.ErrMalformedToken
	// ErrUnauthenticated is returned when a rule needs an identity.
	ErrUnauthenticated = authz.ErrUnauthenticated
	// ErrInsufficientRole is returned when no required role is held.
	ErrInsufficientRole = authz.ErrInsufficientRole
	// ErrFeatureDisabled is returned when the rule's feature is off.
	ErrFeatureDisabled = authz.ErrFeatureDisabled
	// ErrConfig reports invalid configuration at build time.
	ErrConfig = errors.New("invalid configuration")
	// ErrServiceUnavailable is returned when the credential store could not
	// answer in time. It is never converted into an allow or a deny.
	ErrServiceUnavailable = credential.ErrUnavailable
	// ErrLoginRateLimited is returned when the failed-login budget is spent.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrEngineNotReady is returned by methods on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not ready")
)

// PublicError narrows err to the status and message that may be shown to
// a caller. Distinctions between token failures stay available to logs
// through errors.Is but are never exposed.
func PublicError(err error) (status int, message string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "service unavailable"
	case errors.Is(err, ErrLoginRateLimited):
		return http.StatusTooManyRequests, "too many requests"
	case errors.Is(err, ErrInsufficientRole):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, ErrFeatureDisabled):
		return http.StatusNotFound, "not found"
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrExpiredToken),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrMalformedToken),
		errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
