package rbac

import "strings"

// Role is one of the three console authority tiers.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// roleRank encodes the total order user < admin < superadmin.
var roleRank = map[Role]int{
	RoleUser:       0,
	RoleAdmin:      1,
	RoleSuperadmin: 2,
}

// ParseRole validates a raw role value.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(raw)))
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	return role, nil
}

// Valid reports whether the role is one of the enumerated tiers.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Covers reports whether a's authority level is at least b's. It gates who may
// invoke mutations; it never implies permission inheritance between roles.
func Covers(a, b Role) bool {
	ra, ok := roleRank[a]
	if !ok {
		return false
	}
	rb, ok := roleRank[b]
	if !ok {
		return false
	}
	return ra >= rb
}

// Compare orders two roles: -1 when a < b, 0 when equal, 1 when a > b.
func Compare(a, b Role) int {
	ra := roleRank[a]
	rb := roleRank[b]
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	default:
		return 0
	}
}
