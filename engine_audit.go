package goGuard

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/authz"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventLogout               = "logout"
	auditEventAuthzDenied          = "authz_denied"
	auditEventAuthzOverride        = "authz_override"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrExpiredToken       AuditErrorCode = "expired_token"
	auditErrInvalidSignature   AuditErrorCode = "invalid_signature"
	auditErrMalformedToken     AuditErrorCode = "malformed_token"
	auditErrUnauthenticated    AuditErrorCode = "unauthenticated"
	auditErrInsufficientRole   AuditErrorCode = "insufficient_role"
	auditErrFeatureDisabled    AuditErrorCode = "feature_disabled"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	username string,
	err error,
	metadata map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Username:  username,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// auditDecision is installed as the authorization engine's audit hook.
// Only denials and overrides reach it.
func (e *Engine) auditDecision(identity *authz.Identity, rule authz.Rule, d authz.Decision) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventAuthzDenied,
		Success:   d.Allowed,
		Rule:      rule.String(),
	}
	if d.Override {
		event.EventType = auditEventAuthzOverride
	}
	if identity != nil {
		event.UserID = identity.ID
		event.Username = identity.Username
		event.Roles = append([]string(nil), identity.Roles...)
	}
	if code := auditErrorCode(d.Err()); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(context.Background(), event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrExpiredToken):
		return auditErrExpiredToken
	case errors.Is(err, ErrInvalidSignature):
		return auditErrInvalidSignature
	case errors.Is(err, ErrMalformedToken):
		return auditErrMalformedToken
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrInsufficientRole):
		return auditErrInsufficientRole
	case errors.Is(err, ErrFeatureDisabled):
		return auditErrFeatureDisabled
	case errors.Is(err, ErrServiceUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
