// Package security derives the posture report exposed by the root engine.
//
// It takes a flat input describing what was wired at build time and returns
// the report plus human-readable warnings for weak or non-durable settings.
// It has no dependencies on the root package.
package security
