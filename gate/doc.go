// Package gate adapts authentication and authorization to net/http.
//
// # Guards
//
//   - [Gate.Require] protects a handler with an [authz.Rule].
//   - [IdentityFromContext] returns the identity a guard admitted.
//
// A guard reads the Authorization header only when its rule is not public,
// verifies the bearer token through an [Authenticator] and asks an
// [Authorizer] for a decision.
//
// # Status mapping
//
// Token problems of every kind answer 401 with the same body. Missing
// roles answer 403. A disabled feature answers 404 with the body the router
// uses for unknown paths, so disabled endpoints are indistinguishable from
// absent ones.
//
// # What this package must NOT do
//
//   - Parse or sign tokens directly.
//   - Exempt any path from its rule.
//   - Decide access beyond what the Authorizer returns.
package gate
