package authz

import (
	"fmt"
	"maps"
	"slices"
)

// Catalog maps operation names to their rules. It is built once at startup
// and read-only afterwards.
type Catalog struct {
	rules map[string]Rule
}

// NewCatalog validates rules and returns a [Catalog].
func NewCatalog(rules map[string]Rule) (*Catalog, error) {
	out := make(map[string]Rule, len(rules))
	for op, rule := range rules {
		if op == "" {
			return nil, fmt.Errorf("%w: empty operation name", ErrInvalidConfig)
		}
		if err := rule.validate(); err != nil {
			return nil, fmt.Errorf("%w: operation %q", err, op)
		}
		rule.RequiredRoles = slices.Clone(rule.RequiredRoles)
		out[op] = rule
	}
	return &Catalog{rules: out}, nil
}

// Lookup returns the rule for op. Unknown operations fail with
// [ErrUnknownOperation] and must be denied by the caller.
func (c *Catalog) Lookup(op string) (Rule, error) {
	rule, ok := c.rules[op]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
	return rule, nil
}

// MustLookup is like Lookup but panics on unknown operations. It is meant
// for route registration at startup.
func (c *Catalog) MustLookup(op string) Rule {
	rule, err := c.Lookup(op)
	if err != nil {
		panic(err)
	}
	return rule
}

// Operations returns the declared operation names in sorted order.
func (c *Catalog) Operations() []string {
	return slices.Sorted(maps.Keys(c.rules))
}
