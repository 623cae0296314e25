package authz

import (
	"slices"
	"strings"
)

// Identity is the authenticated principal of a single request. It is built
// from verified token claims and must not be modified afterwards.
type Identity struct {
	ID       string
	Username string
	Roles    []string
}

// HasRole reports whether the identity holds role.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	return slices.Contains(i.Roles, role)
}

// Rule is the access requirement of one operation.
type Rule struct {
	// RequiredRoles lists roles of which the identity must hold at least one.
	RequiredRoles []string
	// RequiredFeature names a feature flag that must be enabled.
	RequiredFeature string
	// Authenticated requires an identity even when no role or feature is
	// named.
	Authenticated bool
}

// Public reports whether the rule admits anonymous callers.
func (r Rule) Public() bool {
	return len(r.RequiredRoles) == 0 && r.RequiredFeature == "" && !r.Authenticated
}

// String renders the rule for logs and audit events.
func (r Rule) String() string {
	if r.Public() {
		return "public"
	}
	var b strings.Builder
	b.WriteString("roles=[")
	b.WriteString(strings.Join(r.RequiredRoles, ","))
	b.WriteString("]")
	if r.RequiredFeature != "" {
		b.WriteString(" feature=")
		b.WriteString(r.RequiredFeature)
	}
	return b.String()
}

func (r Rule) validate() error {
	for _, role := range r.RequiredRoles {
		if strings.TrimSpace(role) == "" {
			return ErrInvalidConfig
		}
	}
	if r.RequiredFeature != "" && strings.TrimSpace(r.RequiredFeature) == "" {
		return ErrInvalidConfig
	}
	return nil
}
