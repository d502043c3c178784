// Package internal holds packages private to goGuard.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - config: YAML and environment configuration for the goguard service
//   - flows: pure-function orchestrators behind every Engine operation
//   - httpapi: chi handlers for the MFA and client-key endpoints
//   - limiters: the Redis-backed MFA attempt throttle
//   - logging: zap logger construction
//   - rate: fixed-window counter primitive used by the throttle
//   - security: the security posture report
//
// Nothing here appears in the public goGuard API.
package internal
