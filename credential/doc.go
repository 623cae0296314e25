// Package credential defines the identity record store used by goGuard and
// ships memory, Redis and PostgreSQL implementations.
//
// # Architecture boundaries
//
// A store owns exactly one refresh hash per identity. Rotation and reuse
// detection live in the engine; stores only read, overwrite and, when they
// implement [Swapper], compare-and-swap that hash.
//
// Backend failures are reported as [ErrUnavailable] so callers can answer
// "service unavailable" instead of fabricating an allow or deny.
//
// # What this package must NOT do
//
//   - Hash or verify passwords or tokens.
//   - Retry failed backend calls.
//   - Import goGuard or the token package.
package credential
