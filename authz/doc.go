// Package authz decides whether an identity may perform an operation.
//
// Every protected operation declares a [Rule]: a set of acceptable roles, an
// optional feature flag, and whether an identity is required at all. The
// [Engine] evaluates rules in a fixed order:
//
//  1. A public rule allows anyone, including anonymous callers.
//  2. A missing identity is denied as unauthenticated.
//  3. An identity holding the configured override role is allowed.
//  4. A rule whose feature is not enabled is denied.
//  5. Otherwise the identity must hold at least one required role.
//
// Rules are attached to operations explicitly through a [Catalog]. There is
// no reflection and no path-based bypass.
//
// # What this package must NOT do
//
//   - Parse tokens or talk to a credential store.
//   - Retry or cache decisions.
package authz
