// Package rate provides the Redis fixed-window counter primitive used by the
// attempt limiters in internal/limiters.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Request-level
// sliding windows live in the public ratelimit package.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the goGuard module.
package rate
