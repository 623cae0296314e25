package authz

import (
	"errors"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type auditRecorder struct {
	mu        sync.Mutex
	decisions []Decision
}

func (r *auditRecorder) record(_ *Identity, _ Rule, d Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
}

func newTestEngine(t *testing.T, rec *auditRecorder) *Engine {
	t.Helper()
	var audit AuditFunc
	if rec != nil {
		audit = rec.record
	}
	e, err := NewEngine(Config{
		EnabledFeatures: []string{"obligated-debt"},
		OverrideRole:    "R&D-Lightstage",
	}, logr.Discard(), audit)
	require.NoError(t, err)
	return e
}

func TestAuthorize(t *testing.T) {
	e := newTestEngine(t, nil)

	tests := []struct {
		name     string
		identity *Identity
		rule     Rule
		allowed  bool
		reason   Reason
	}{
		{
			name:    "public rule admits anonymous",
			rule:    Rule{},
			allowed: true,
		},
		{
			name:   "anonymous denied on role rule",
			rule:   Rule{RequiredRoles: []string{"B"}},
			reason: ReasonUnauthenticated,
		},
		{
			name:   "anonymous denied on authenticated rule",
			rule:   Rule{Authenticated: true},
			reason: ReasonUnauthenticated,
		},
		{
			name:     "no intersection",
			identity: &Identity{ID: "1", Roles: []string{"A"}},
			rule:     Rule{RequiredRoles: []string{"B", "C"}},
			reason:   ReasonInsufficientRole,
		},
		{
			name:     "one matching role is enough",
			identity: &Identity{ID: "1", Roles: []string{"A", "B"}},
			rule:     Rule{RequiredRoles: []string{"B", "C"}},
			allowed:  true,
		},
		{
			name:     "identity without roles",
			identity: &Identity{ID: "1"},
			rule:     Rule{RequiredRoles: []string{"B"}},
			reason:   ReasonInsufficientRole,
		},
		{
			name:     "authenticated rule admits any identity",
			identity: &Identity{ID: "1"},
			rule:     Rule{Authenticated: true},
			allowed:  true,
		},
		{
			name:     "disabled feature",
			identity: &Identity{ID: "1", Roles: []string{"IL-LM-SUP"}},
			rule:     Rule{RequiredRoles: []string{"IL-LM-SUP"}, RequiredFeature: "beta-export"},
			reason:   ReasonFeatureDisabled,
		},
		{
			name:     "enabled feature with matching role",
			identity: &Identity{ID: "1", Roles: []string{"IL-FN-MNG"}},
			rule:     Rule{RequiredRoles: []string{"IL-LM-SUP", "IL-FN-MNG"}, RequiredFeature: "obligated-debt"},
			allowed:  true,
		},
		{
			name:     "feature only rule",
			identity: &Identity{ID: "1"},
			rule:     Rule{RequiredFeature: "obligated-debt"},
			allowed:  true,
		},
		{
			name:     "override role bypasses roles and features",
			identity: &Identity{ID: "2", Roles: []string{"R&D-Lightstage"}},
			rule:     Rule{RequiredRoles: []string{"IL-LM-SUP"}, RequiredFeature: "beta-export"},
			allowed:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Authorize(tt.identity, tt.rule)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestDecisionErr(t *testing.T) {
	assert.NoError(t, Decision{Allowed: true}.Err())
	assert.ErrorIs(t, Decision{Reason: ReasonUnauthenticated}.Err(), ErrUnauthenticated)
	assert.ErrorIs(t, Decision{Reason: ReasonFeatureDisabled}.Err(), ErrFeatureDisabled)
	assert.ErrorIs(t, Decision{Reason: ReasonInsufficientRole}.Err(), ErrInsufficientRole)
}

func TestAuditReceivesDenialsAndOverrides(t *testing.T) {
	rec := &auditRecorder{}
	e := newTestEngine(t, rec)

	e.Authorize(&Identity{ID: "1", Roles: []string{"A"}}, Rule{RequiredRoles: []string{"B"}})
	e.Authorize(&Identity{ID: "2", Roles: []string{"R&D-Lightstage"}}, Rule{RequiredRoles: []string{"B"}})
	e.Authorize(&Identity{ID: "3", Roles: []string{"B"}}, Rule{RequiredRoles: []string{"B"}})
	e.Authorize(nil, Rule{})

	require.Len(t, rec.decisions, 2)
	assert.Equal(t, ReasonInsufficientRole, rec.decisions[0].Reason)
	assert.True(t, rec.decisions[1].Allowed)
	assert.True(t, rec.decisions[1].Override)
}

func TestNewEngineRejectsEmptyFeature(t *testing.T) {
	_, err := NewEngine(Config{EnabledFeatures: []string{"ok", " "}}, logr.Discard(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestNewEngineWithoutOverride(t *testing.T) {
	e, err := NewEngine(Config{}, logr.Logger{}, nil)
	require.NoError(t, err)

	d := e.Authorize(&Identity{ID: "1", Roles: []string{""}}, Rule{RequiredRoles: []string{"B"}})
	assert.False(t, d.Allowed)
	assert.False(t, e.FeatureEnabled("obligated-debt"))
}

func TestRuleString(t *testing.T) {
	assert.Equal(t, "public", Rule{}.String())
	assert.Equal(t, "roles=[A,B] feature=f", Rule{RequiredRoles: []string{"A", "B"}, RequiredFeature: "f"}.String())
}
