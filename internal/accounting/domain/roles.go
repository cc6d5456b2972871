package domain

import "fmt"

// Role is a capability granted to a caller.
type Role string

// Roles.
const (
	RoleOracle     Role = "oracle"
	RoleGovernance Role = "governance"
	RoleStaker     Role = "staker"
	RoleDepositor  Role = "depositor"
	RoleBurner     Role = "burner"
	RoleVault      Role = "vault"
)

// AllRoles lists every known role.
var AllRoles = []Role{RoleOracle, RoleGovernance, RoleStaker, RoleDepositor, RoleBurner, RoleVault}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	for _, r := range AllRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Caller identifies who invokes an operation and what it may do.
type Caller struct {
	ID    string
	Roles []Role
}

// Has reports whether the caller holds role.
func (c Caller) Has(role Role) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SystemCaller holds every role. It is used when authentication is disabled
// and by operator tooling running next to the store.
func SystemCaller() Caller {
	return Caller{ID: "system", Roles: AllRoles}
}
