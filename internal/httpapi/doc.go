// Package httpapi exposes the engine over HTTP with chi.
//
// Every route is bound to a named operation whose access rule comes from
// [Rules]; the gate enforces the rule before the handler runs. There are
// no path-based exceptions, and the metrics endpoint is not part of this
// router.
package httpapi
