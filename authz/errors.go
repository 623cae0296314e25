package authz

import "errors"

var (
	// ErrUnauthenticated is returned when a rule needs an identity and none
	// was supplied.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInsufficientRole is returned when the identity holds none of the
	// rule's roles.
	ErrInsufficientRole = errors.New("insufficient role")
	// ErrFeatureDisabled is returned when the rule's feature is not enabled.
	ErrFeatureDisabled = errors.New("feature disabled")
	// ErrUnknownOperation is returned by [Catalog.Lookup] for operations
	// with no declared rule.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrInvalidConfig reports an unusable engine or catalog configuration.
	ErrInvalidConfig = errors.New("invalid authorization config")
)
