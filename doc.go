// Package goGuard provides a token authentication and role/feature
// authorization engine: login with argon2id password verification,
// rotating HS256 refresh tokens with single-use semantics, stateless
// access-token authentication and rule-based authorization.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goGuard is the public surface. It exposes [Engine], [Builder], [Config]
// and value types ([TokenPair], [MetricsSnapshot]). Token encoding lives in
// package token, password hashing in package password, credential
// persistence in package credential and rule evaluation in package authz.
// Locking, rate limiting and audit dispatch live under internal/.
//
// # Refresh rotation
//
// Only a SHA-256 digest of the most recent refresh token is stored per
// identity. Login and Refresh overwrite it, Logout clears it. A refresh
// token whose digest no longer matches is rejected with
// [ErrInvalidCredentials], even before it expires. Concurrent refreshes of
// the same token are serialized by a per-identity lock and, when the store
// implements [credential.Swapper], a compare-and-swap.
//
// # What this package must NOT do
//
//   - Log or audit passwords, tokens or secrets.
//   - Turn a credential store failure into an allow or a deny. Store
//     timeouts surface as [ErrServiceUnavailable].
//   - Retry store calls.
//   - Import any sub-package that re-imports goGuard.
package goGuard
