// Package permission defines the ordered role hierarchy used by goGuard
// authorization checks.
//
// # Role order
//
//	customer < employee < manager < owner < admin
//
// A session satisfies a requirement when its role ranks at or above the required
// role ([Role.AtLeast]). Unknown role strings parse to [RoleNone], which satisfies
// nothing.
//
// # Architecture boundaries
//
// This package is a pure value type with text and YAML codecs. Route-to-role rules
// live in the middleware configuration.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import goGuard, session, or middleware.
//   - Compare roles by string.
package permission
