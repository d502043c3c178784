// Package ratelimit provides sliding-window request limiters keyed by
// (identity, route class).
//
// # Window semantics
//
// Each bucket keeps the timestamps of admitted requests. On every check, entries at
// or before now-window are dropped; the request is admitted iff fewer than limit
// remain, in which case now is recorded. A denied request reports
// RetryAfter = window - (now - oldest).
//
// The window is the half-open interval (now-window, now]. The lower boundary
// is exclusive: a hit made exactly one window ago no longer counts, so waiting
// RetryAfter is always enough. Both implementations apply the same boundary.
//
// # Implementations
//
//   - [SlidingWindow]: in-process, sharded by key hash. History is lost on
//     restart and is not shared between replicas.
//   - [RedisSlidingWindow]: the same algorithm executed atomically in one Lua
//     script over a sorted set per bucket, shared across processes.
//
// # What this package must NOT do
//
//   - Hold a process-wide singleton; every limiter is owned by its caller.
//   - Decide which identity or class applies to a request (the gateway does).
package ratelimit
