package authz

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-logr/logr"
)

// Reason explains a [Decision].
type Reason string

const (
	// ReasonNone accompanies an allowed decision.
	ReasonNone Reason = ""
	// ReasonUnauthenticated means a non-public rule saw no identity.
	ReasonUnauthenticated Reason = "unauthenticated"
	// ReasonFeatureDisabled means the rule's feature is not enabled.
	ReasonFeatureDisabled Reason = "feature_disabled"
	// ReasonInsufficientRole means the identity holds none of the required
	// roles.
	ReasonInsufficientRole Reason = "insufficient_role"
)

// Decision is the outcome of [Engine.Authorize]. Override is set when the
// identity was admitted only because it holds the override role.
type Decision struct {
	Allowed  bool
	Reason   Reason
	Override bool
}

// Err returns nil for an allowed decision and the sentinel matching the
// denial reason otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonUnauthenticated:
		return ErrUnauthenticated
	case ReasonFeatureDisabled:
		return ErrFeatureDisabled
	default:
		return ErrInsufficientRole
	}
}

// Config configures an [Engine].
type Config struct {
	// EnabledFeatures lists feature flags that are switched on.
	EnabledFeatures []string
	// OverrideRole admits its holders to every non-public rule. Empty
	// disables the override.
	OverrideRole string
}

// AuditFunc receives every denial and every override decision.
type AuditFunc func(identity *Identity, rule Rule, decision Decision)

// Engine evaluates rules against identities. It is immutable after
// construction and safe for concurrent use.
type Engine struct {
	features     map[string]struct{}
	overrideRole string
	logger       logr.Logger
	audit        AuditFunc
}

// NewEngine validates cfg and returns an [Engine]. Feature names must be
// non-empty. A nil audit is allowed.
func NewEngine(cfg Config, logger logr.Logger, audit AuditFunc) (*Engine, error) {
	features := make(map[string]struct{}, len(cfg.EnabledFeatures))
	for _, name := range cfg.EnabledFeatures {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: empty feature name", ErrInvalidConfig)
		}
		features[name] = struct{}{}
	}
	if cfg.OverrideRole != "" && strings.TrimSpace(cfg.OverrideRole) == "" {
		return nil, fmt.Errorf("%w: blank override role", ErrInvalidConfig)
	}
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	return &Engine{
		features:     features,
		overrideRole: cfg.OverrideRole,
		logger:       logger.WithName("authz"),
		audit:        audit,
	}, nil
}

// FeatureEnabled reports whether name is switched on.
func (e *Engine) FeatureEnabled(name string) bool {
	_, ok := e.features[name]
	return ok
}

// Authorize decides whether identity satisfies rule. identity may be nil
// for anonymous callers.
func (e *Engine) Authorize(identity *Identity, rule Rule) Decision {
	if rule.Public() {
		return Decision{Allowed: true}
	}
	if identity == nil {
		return e.deny(identity, rule, ReasonUnauthenticated)
	}
	if e.overrideRole != "" && identity.HasRole(e.overrideRole) {
		d := Decision{Allowed: true, Override: true}
		e.logger.Info("authorization override",
			"user", identity.ID, "rule", rule.String(), "roles", identity.Roles)
		if e.audit != nil {
			e.audit(identity, rule, d)
		}
		return d
	}
	if rule.RequiredFeature != "" && !e.FeatureEnabled(rule.RequiredFeature) {
		return e.deny(identity, rule, ReasonFeatureDisabled)
	}
	if len(rule.RequiredRoles) == 0 {
		return Decision{Allowed: true}
	}
	if slices.ContainsFunc(rule.RequiredRoles, identity.HasRole) {
		return Decision{Allowed: true}
	}
	return e.deny(identity, rule, ReasonInsufficientRole)
}

func (e *Engine) deny(identity *Identity, rule Rule, reason Reason) Decision {
	d := Decision{Reason: reason}

	keysAndValues := []any{"reason", string(reason), "rule", rule.String()}
	if identity != nil {
		keysAndValues = append(keysAndValues, "user", identity.ID, "roles", identity.Roles)
	}
	e.logger.Info("authorization denied", keysAndValues...)

	if e.audit != nil {
		e.audit(identity, rule, d)
	}
	return d
}
