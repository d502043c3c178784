package permission

import (
	"errors"
	"fmt"
	"strings"
)

// Role is a position in the role hierarchy. Larger values carry more privilege.
type Role uint8

const (
	// RoleNone is the zero value and ranks below every named role.
	RoleNone Role = iota
	// RoleCustomer is the least privileged named role.
	RoleCustomer
	// RoleEmployee ranks above customer.
	RoleEmployee
	// RoleManager ranks above employee.
	RoleManager
	// RoleOwner ranks above manager.
	RoleOwner
	// RoleAdmin is the most privileged role.
	RoleAdmin
)

// ErrUnknownRole is returned by ParseRole for names outside the hierarchy.
var ErrUnknownRole = errors.New("unknown role")

var roleNames = [...]string{
	RoleNone:     "",
	RoleCustomer: "customer",
	RoleEmployee: "employee",
	RoleManager:  "manager",
	RoleOwner:    "owner",
	RoleAdmin:    "admin",
}

// Roles lists every named role in ascending order.
func Roles() []Role {
	return []Role{RoleCustomer, RoleEmployee, RoleManager, RoleOwner, RoleAdmin}
}

// ParseRole maps a case-insensitive role name to its Role.
func ParseRole(name string) (Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return RoleNone, fmt.Errorf("%w: empty", ErrUnknownRole)
	}
	for i := RoleCustomer; i <= RoleAdmin; i++ {
		if roleNames[i] == name {
			return i, nil
		}
	}
	return RoleNone, fmt.Errorf("%w: %q", ErrUnknownRole, name)
}

// MustParseRole is ParseRole for static configuration; it panics on unknown names.
func MustParseRole(name string) Role {
	r, err := ParseRole(name)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the lowercase role name.
func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return ""
}

// Valid reports whether r is a named role.
func (r Role) Valid() bool {
	return r >= RoleCustomer && r <= RoleAdmin
}

// Rank returns the numeric position of r; RoleNone and invalid values rank 0.
func (r Role) Rank() int {
	if !r.Valid() {
		return 0
	}
	return int(r)
}

// AtLeast reports whether r satisfies a requirement of required. An invalid
// required role is never satisfied.
func (r Role) AtLeast(required Role) bool {
	if !r.Valid() || !required.Valid() {
		return false
	}
	return r.Rank() >= required.Rank()
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
