// Package goGuard provides the authentication and access-control core of a
// multi-tenant service: TOTP multi-factor authentication with single-use
// backup codes, client API key issuance and authorization, and the pieces the
// HTTP gateway in the middleware package is built from.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goGuard is the public surface. It exposes [Engine], [Builder], [Config], the
// persistence contracts [MFAStore] and [KeyStore], and value types. Flow
// orchestration, the MFA attempt throttle and audit dispatch live under
// internal/ and are never exported. Reusable primitives live in their own
// packages: otp (base32, TOTP, backup codes), ratelimit, permission,
// secretbox and session.
//
// # What this package must NOT do
//
//   - Return a stored TOTP secret or a plaintext client key after issuance.
//   - Hold a lock across store I/O.
//   - Import middleware or any store adapter (they import goGuard).
//
// # Failure model
//
// Wrong codes and unknown keys are ordinary results (false or nil), not
// errors. Store, limiter and encoding failures are errors and fail closed;
// every store call is bounded by Config.Store.Timeout and surfaces as
// [ErrStoreUnavailable].
package goGuard
