// Package middleware is the HTTP edge of goGuard.
//
// # Gateway
//
// [Gateway] runs each request through a fixed sequence: route
// classification, per-IP rate limiting, session resolution, then the
// protected, tenant, freshness and role gates. Security headers are set on
// every response. Denials produce exactly one audit event through the
// engine's sink; allowed requests are forwarded with X-User-* and X-Tenant-*
// headers and the resolved [session.Descriptor] in the context.
//
// Resolver and limiter failures fail closed on protected routes.
//
// # Client keys
//
// [RequireClientKey] guards machine-to-machine routes with
// Engine.AuthorizeKey.
//
// This package translates HTTP semantics only. MFA, key hashing and the
// sliding window itself live in goGuard and ratelimit.
package middleware
