// Package token issues and verifies the signed access and refresh tokens
// used by goGuard.
//
// # Kinds and secrets
//
// Access and refresh tokens are HS256 JWTs signed with two distinct secrets.
// A leaked access token therefore cannot be replayed as a refresh token: it
// fails signature verification before its claims are even looked at. Each
// token additionally carries a "kind" claim that is checked after the
// signature.
//
// # What this package must NOT do
//
//   - Persist tokens or keep revocation state.
//   - Import goGuard or any store package.
package token
