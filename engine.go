package goGuard

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/authz"
	"github.com/MrEthical07/goGuard/credential"
	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/keylock"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/token"
	"github.com/go-logr/logr"
)

// Engine runs login, refresh, logout, token authentication and rule
// authorization. Build it with [Builder.Build]; all methods are safe for
// concurrent use.
type Engine struct {
	config    Config
	store     credential.Store
	swapper   credential.Swapper
	pwUpdater credential.PasswordUpdater
	codec     *token.Codec
	hasher    *password.Hasher
	authz     *authz.Engine
	limiter   *rate.Limiter
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	logger    logr.Logger
	locks     keylock.Map
}

// Close flushes pending audit events and stops the dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were dropped under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters together with the
// audit drops per event type.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:     map[MetricID]uint64{},
			Histograms:   map[MetricID][]uint64{},
			AuditDropped: map[string]uint64{},
		}
	}
	s := e.metrics.Snapshot()
	s.AuditDropped = e.audit.DroppedByEvent()
	return s
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login verifies username and password and issues a fresh token pair. The
// new refresh token supersedes any earlier one for the same identity.
//
// Unknown users and wrong passwords both fail with
// [ErrInvalidCredentials] after the same amount of hashing work.
func (e *Engine) Login(ctx context.Context, username, password string) (TokenPair, error) {
	if e == nil || e.codec == nil || e.store == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	if e.limiter != nil {
		if err := e.limiter.CheckLogin(ctx, username, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditEventLoginRateLimited, false, "", username, ErrLoginRateLimited, nil)
				return TokenPair{}, ErrLoginRateLimited
			}
			return TokenPair{}, e.unavailable("login limiter", err)
		}
	}

	if strings.TrimSpace(username) == "" || password == "" {
		e.hasher.DummyVerify(password)
		return TokenPair{}, e.loginFailed(ctx, "", username, "empty_input")
	}

	// Over-long input is rejected before the lookup so known and unknown
	// users cost one full dummy hash alike.
	if len(password) > e.hasher.MaxPasswordBytes() {
		e.hasher.DummyVerify(password)
		return TokenPair{}, e.loginFailed(ctx, "", username, "password_too_long")
	}

	rec, err := e.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			e.hasher.DummyVerify(password)
			return TokenPair{}, e.loginFailed(ctx, "", username, "user_not_found")
		}
		return TokenPair{}, e.unavailable("find credential", err)
	}

	ok, err := e.hasher.Verify(password, rec.PasswordHash)
	if err != nil {
		e.logger.Error(err, "stored password hash rejected", "user", rec.ID)
		return TokenPair{}, e.loginFailed(ctx, rec.ID, username, "hash_unusable")
	}
	if !ok {
		return TokenPair{}, e.loginFailed(ctx, rec.ID, username, "password_mismatch")
	}

	e.maybeUpgradePassword(ctx, rec, password)

	unlock := e.locks.Lock(rec.ID)
	defer unlock()

	pair, refreshHash, err := e.issuePair(rec)
	if err != nil {
		return TokenPair{}, err
	}
	if err := e.store.UpdateRefreshHash(ctx, rec.ID, refreshHash); err != nil {
		return TokenPair{}, e.unavailable("store refresh hash", err)
	}

	if e.limiter != nil {
		if err := e.limiter.ResetLogin(ctx, username, ip); err != nil {
			e.logger.V(1).Info("login limiter reset failed", "error", err.Error())
		}
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, rec.ID, rec.Username, nil, nil)
	return pair, nil
}

func (e *Engine) loginFailed(ctx context.Context, userID, username, reason string) error {
	if e.limiter != nil {
		if err := e.limiter.IncrementLogin(ctx, username, clientIPFromContext(ctx)); err != nil {
			e.logger.V(1).Info("login limiter increment failed", "error", err.Error())
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, username, ErrInvalidCredentials, map[string]string{
		"reason": reason,
	})
	return ErrInvalidCredentials
}

func (e *Engine) maybeUpgradePassword(ctx context.Context, rec credential.Record, plaintext string) {
	if !e.config.Password.UpgradeOnLogin || e.pwUpdater == nil {
		return
	}
	needsUpgrade, err := e.hasher.NeedsUpgrade(rec.PasswordHash)
	if err != nil || !needsUpgrade {
		return
	}
	upgraded, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.logger.V(1).Info("password rehash skipped", "user", rec.ID, "error", err.Error())
		return
	}
	// Best effort: a failed rehash never fails the login.
	if err := e.pwUpdater.UpdatePasswordHash(ctx, rec.ID, upgraded); err != nil {
		if !errors.Is(err, errors.ErrUnsupported) {
			e.logger.Error(err, "password hash upgrade failed", "user", rec.ID)
		}
		return
	}
	e.metricInc(MetricPasswordUpgraded)
}

// Refresh exchanges a refresh token for a new pair. The presented token
// must be the most recently issued one for its identity; a superseded or
// logged-out token fails with [ErrInvalidCredentials] even when unexpired.
//
// Concurrent refreshes of the same token produce exactly one success.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil || e.codec == nil || e.store == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	tok, err := e.codec.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", err, map[string]string{
			"reason": string(auditErrorCode(err)),
		})
		return TokenPair{}, ErrInvalidCredentials
	}

	unlock := e.locks.Lock(tok.Subject)
	defer unlock()

	rec, err := e.store.FindByID(ctx, tok.Subject)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, tok.Subject, "", ErrInvalidCredentials, map[string]string{
				"reason": "user_not_found",
			})
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, e.unavailable("find credential", err)
	}

	presented := hashRefreshToken(refreshToken)
	if rec.RefreshHash == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(rec.RefreshHash)) != 1 {
		reason := "superseded"
		if rec.RefreshHash == "" {
			reason = "logged_out"
		}
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, rec.ID, rec.Username, ErrInvalidCredentials, map[string]string{
			"reason": reason,
		})
		e.logger.Info("refresh token reuse rejected", "user", rec.ID, "reason", reason)
		return TokenPair{}, ErrInvalidCredentials
	}

	pair, nextHash, err := e.issuePair(rec)
	if err != nil {
		return TokenPair{}, err
	}

	if e.swapper != nil {
		swapped, err := e.swapper.SwapRefreshHash(ctx, rec.ID, rec.RefreshHash, nextHash)
		if err != nil {
			if errors.Is(err, credential.ErrNotFound) {
				e.metricInc(MetricRefreshFailure)
				return TokenPair{}, ErrInvalidCredentials
			}
			return TokenPair{}, e.unavailable("swap refresh hash", err)
		}
		if !swapped {
			e.metricInc(MetricRefreshReuseDetected)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, rec.ID, rec.Username, ErrInvalidCredentials, map[string]string{
				"reason": "lost_swap",
			})
			return TokenPair{}, ErrInvalidCredentials
		}
	} else if err := e.store.UpdateRefreshHash(ctx, rec.ID, nextHash); err != nil {
		return TokenPair{}, e.unavailable("store refresh hash", err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, rec.ID, rec.Username, nil, nil)
	return pair, nil
}

// Logout clears the stored refresh hash for identityID. It is idempotent,
// and an unknown identity is not an error.
func (e *Engine) Logout(ctx context.Context, identityID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if identityID == "" {
		return nil
	}

	unlock := e.locks.Lock(identityID)
	defer unlock()

	if err := e.store.UpdateRefreshHash(ctx, identityID, ""); err != nil && !errors.Is(err, credential.ErrNotFound) {
		return e.unavailable("clear refresh hash", err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, identityID, "", nil, nil)
	return nil
}

// Authenticate verifies an access token and returns the identity it
// carries. It never touches the credential store.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (Identity, error) {
	if e == nil || e.codec == nil {
		return Identity{}, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() { e.metrics.Observe(MetricAuthenticateLatency, time.Since(start)) }()
	}

	tok, err := e.codec.Verify(accessToken, token.KindAccess)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		e.logger.V(1).Info("access token rejected", "reason", auditErrorCode(err))
		return Identity{}, err
	}

	return Identity{
		ID:       tok.Subject,
		Username: tok.Username,
		Roles:    tok.Roles,
	}, nil
}

// Authorize decides whether identity satisfies rule. identity may be nil
// for anonymous callers.
func (e *Engine) Authorize(identity *Identity, rule Rule) Decision {
	if e == nil || e.authz == nil {
		return Decision{Reason: authz.ReasonUnauthenticated}
	}

	d := e.authz.Authorize(identity, rule)
	switch {
	case d.Override:
		e.metricInc(MetricAuthzOverride)
	case d.Allowed:
		e.metricInc(MetricAuthzAllowed)
	default:
		e.metricInc(MetricAuthzDenied)
	}
	return d
}

// HashPassword returns an argon2id hash of plaintext using the engine's
// parameters.
func (e *Engine) HashPassword(plaintext string) (string, error) {
	if e == nil || e.hasher == nil {
		return "", ErrEngineNotReady
	}
	return e.hasher.Hash(plaintext)
}

func (e *Engine) issuePair(rec credential.Record) (TokenPair, string, error) {
	subject := token.Subject{ID: rec.ID, Username: rec.Username, Roles: rec.Roles}

	access, err := e.codec.Issue(subject, token.KindAccess, e.config.JWT.AccessTTL)
	if err != nil {
		return TokenPair{}, "", fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := e.codec.Issue(subject, token.KindRefresh, e.config.JWT.RefreshTTL)
	if err != nil {
		return TokenPair{}, "", fmt.Errorf("issue refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:      access.Value,
		RefreshToken:     refresh.Value,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, hashRefreshToken(refresh.Value), nil
}

func (e *Engine) unavailable(op string, err error) error {
	e.metricInc(MetricStoreUnavailable)
	e.logger.Error(err, "backend unavailable", "op", op)
	if errors.Is(err, ErrServiceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrServiceUnavailable, op, err)
}

func hashRefreshToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
