package goGuard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/password"
)

func newAuditedEngine(t *testing.T) (*Engine, *ChannelSink) {
	t.Helper()
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false

	sink := NewChannelSink(64)
	engine, err := New().
		WithConfig(cfg).
		WithCredentialStore(seededStore(t)).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, sink
}

func nextEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()
	select {
	case event := <-sink.Events():
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

func TestAuditLoginRefreshLogout(t *testing.T) {
	engine, sink := newAuditedEngine(t)
	ctx := WithClientIP(context.Background(), "198.51.100.4")

	if _, err := engine.Login(ctx, "john", "nope-nope"); err == nil {
		t.Fatal("expected login failure")
	}
	failure := nextEvent(t, sink)
	if failure.EventType != auditEventLoginFailure || failure.Success {
		t.Fatalf("unexpected event %+v", failure)
	}
	if failure.IP != "198.51.100.4" || failure.Error != string(auditErrInvalidCredentials) {
		t.Fatalf("unexpected failure details %+v", failure)
	}

	pair, err := engine.Login(ctx, "john", "changeme")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if ev := nextEvent(t, sink); ev.EventType != auditEventLoginSuccess || ev.UserID != "1" {
		t.Fatalf("unexpected event %+v", ev)
	}

	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if ev := nextEvent(t, sink); ev.EventType != auditEventRefreshSuccess {
		t.Fatalf("unexpected event %+v", ev)
	}

	if _, err := engine.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Fatal("expected reuse to fail")
	}
	reuse := nextEvent(t, sink)
	if reuse.EventType != auditEventRefreshReuseDetected || reuse.Metadata["reason"] != "superseded" {
		t.Fatalf("unexpected event %+v", reuse)
	}

	if err := engine.Logout(ctx, "1"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if ev := nextEvent(t, sink); ev.EventType != auditEventLogout || !ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestAuditAuthorizationDenialAndOverride(t *testing.T) {
	engine, sink := newAuditedEngine(t)
	rule := Rule{RequiredRoles: []string{"IL-FN-MNG"}, RequiredFeature: "obligated-debt"}

	engine.Authorize(&Identity{ID: "1", Roles: []string{"IL-LM-SUP"}}, rule)
	denied := nextEvent(t, sink)
	if denied.EventType != auditEventAuthzDenied || denied.Success {
		t.Fatalf("unexpected event %+v", denied)
	}
	if denied.Rule != rule.String() || len(denied.Roles) != 1 || denied.Roles[0] != "IL-LM-SUP" {
		t.Fatalf("denial must carry rule and roles, got %+v", denied)
	}
	if denied.Error != string(auditErrInsufficientRole) {
		t.Fatalf("unexpected error code %q", denied.Error)
	}

	engine.Authorize(&Identity{ID: "9", Roles: []string{"R&D-Lightstage"}}, rule)
	override := nextEvent(t, sink)
	if override.EventType != auditEventAuthzOverride || !override.Success || override.UserID != "9" {
		t.Fatalf("unexpected event %+v", override)
	}

	engine.Authorize(&Identity{ID: "2", Roles: []string{"IL-FN-MNG"}}, rule)
	select {
	case ev := <-sink.Events():
		t.Fatalf("allowed decisions must not be audited, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAuditOverLongPasswordSameForKnownAndUnknown(t *testing.T) {
	engine, sink := newAuditedEngine(t)
	long := strings.Repeat("p", password.DefaultMaxPasswordBytes+1)

	for _, username := range []string{"john", "nobody"} {
		if _, err := engine.Login(context.Background(), username, long); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", username, err)
		}
		ev := nextEvent(t, sink)
		if ev.EventType != auditEventLoginFailure || ev.UserID != "" {
			t.Fatalf("%s: unexpected event %+v", username, ev)
		}
		if ev.Metadata["reason"] != "password_too_long" {
			t.Fatalf("%s: expected reason password_too_long, got %q", username, ev.Metadata["reason"])
		}
	}
}

func TestAuditRefreshInvalidCarriesReason(t *testing.T) {
	engine, sink := newAuditedEngine(t)

	if _, err := engine.Refresh(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	ev := nextEvent(t, sink)
	if ev.EventType != auditEventRefreshInvalid || ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Metadata["reason"] != string(auditErrMalformedToken) {
		t.Fatalf("expected reason %q, got %q", auditErrMalformedToken, ev.Metadata["reason"])
	}
}
