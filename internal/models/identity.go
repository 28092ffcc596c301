package models

import "strings"

// Role is the account type an identity belongs to.
type Role string

const (
	RoleCEO      Role = "CEO"
	RoleHR       Role = "HR"
	RoleManager  Role = "Manager"
	RoleEmployee Role = "Employee"
	RoleAdmin    Role = "Admin"
)

// Roles lists every role in resolution priority order.
var Roles = []Role{RoleHR, RoleEmployee, RoleCEO, RoleManager, RoleAdmin}

// ParseRole matches s case-insensitively against the known roles.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles {
		if strings.EqualFold(string(r), s) {
			return r, true
		}
	}
	return "", false
}

// Identity is an account known to the HR system. The core reads identities
// and never mutates them.
type Identity struct {
	Email       string `json:"email" db:"email"`
	Role        Role   `json:"role" db:"role"`
	DisplayName string `json:"display_name" db:"display_name"`
}
