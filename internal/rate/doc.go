// Package rate implements the Redis-backed failed-login limiter.
//
// # Window semantics
//
// Fixed-window counters: INCR and PEXPIRE on the first hit run as one Lua
// script, so a crash between the two cannot leave an immortal counter. Keys:
//   - <prefix>:rl:u:<username>
//   - <prefix>:rl:ip:<address>
//
// # What this package must NOT do
//
//   - Decide whether credentials are valid.
//   - Be imported outside the goGuard module.
package rate
