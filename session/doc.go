// Package session resolves the signed-in principal of an HTTP request into a
// [Descriptor].
//
// Session issuance belongs to the identity provider. This package only reads:
//
//   - [JWTResolver] verifies a bearer or cookie access token (golang-jwt/v5).
//   - [RedisResolver] looks up an opaque session id in a [RedisStore], where
//     descriptors are kept in a compact versioned binary form.
//   - [CachingResolver] memoizes positive results of another resolver.
//
// # Resolver contract
//
// Resolve returns (nil, nil) when the request carries no usable session and a
// non-nil error only when the backing service failed. Callers fail closed on
// that error.
//
// # What this package must NOT do
//
//   - Import goGuard or middleware (no upward imports).
//   - Make authorization decisions; role and freshness gates live in middleware.
//   - Retain raw credentials; cache keys are digests.
package session
