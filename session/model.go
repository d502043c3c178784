package session

import (
	"time"

	"github.com/MrEthical07/goGuard/permission"
)

// Descriptor is the read-only view of a signed-in principal.
type Descriptor struct {
	UserID     string
	Email      string
	TenantID   string
	TenantName string
	Role       permission.Role
	IssuedAt   time.Time
}

// HasTenant reports whether the principal is associated with a tenant.
func (d *Descriptor) HasTenant() bool {
	return d != nil && d.TenantID != ""
}

// Age is how long ago the session was issued, measured at now.
func (d *Descriptor) Age(now time.Time) time.Duration {
	if d == nil || d.IssuedAt.IsZero() {
		return 0
	}
	return now.Sub(d.IssuedAt)
}

func (d *Descriptor) clone() *Descriptor {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
