package auth

import "strings"

// Role is an RBAC role carried in JWT claims. Roles form a strict
// hierarchy: admin > operator > viewer.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	return roleRanks[r] > 0
}

// NormalizeRole folds case and whitespace and validates the result.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	return role, role.Valid()
}

// RoleAtLeast reports whether role meets or exceeds required. Unknown
// roles never satisfy anything.
func RoleAtLeast(role Role, required Role) bool {
	rank := roleRanks[role]
	return rank > 0 && rank >= roleRanks[required]
}
