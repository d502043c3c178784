// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunVerifyMFA, RunCreateClientKey, RunAuthorizeClientKey, etc.)
// accepts a typed dependency struct and returns results without side-effects beyond
// those dependencies. Tests drive the flows with plain function fields instead of
// real stores.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the MFA and key stores, the TOTP generator,
// the attempt throttle, the rate limiter, audit and metrics. They do NOT own any of
// these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goGuard (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
