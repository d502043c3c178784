package goGuard

import (
	"context"

	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
)

// WithClientIP attaches the caller's IP address to ctx. The Engine records it
// on every audit event it emits.
//
//	Docs: docs/audit.md
func WithClientIP(ctx context.Context, ip string) context.Context {
	return internalaudit.WithRequest(ctx, internalaudit.Request{IP: ip})
}

// WithTenantID attaches a tenant identifier to ctx. Audit events without an
// explicit tenant fall back to it.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return internalaudit.WithRequest(ctx, internalaudit.Request{TenantID: tenantID})
}

// WithRequestPath attaches the HTTP path being served so audit events can name
// the route they concern.
func WithRequestPath(ctx context.Context, path string) context.Context {
	return internalaudit.WithRequest(ctx, internalaudit.Request{Path: path})
}

// WithKeyID attaches the id of the client key that authorized the request.
func WithKeyID(ctx context.Context, keyID string) context.Context {
	return internalaudit.WithRequest(ctx, internalaudit.Request{KeyID: keyID})
}

// ClientIPFromContext returns the IP set by [WithClientIP], or "".
func ClientIPFromContext(ctx context.Context) string {
	return internalaudit.RequestFromContext(ctx).IP
}
