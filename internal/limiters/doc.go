// Package limiters provides domain-specific attempt limiters built on top of the
// internal/rate primitives.
//
// # Limiters
//
//   - [MFAAttemptLimiter]: per-user failure throttle for TOTP and backup-code
//     verification (default 5 failures / 5 min).
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Policy thresholds
// come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import goGuard or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting; flow functions decide consequences.
package limiters
