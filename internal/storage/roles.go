package storage

import (
	"fmt"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
)

// roleTable names the table holding one role's profiles and the column with
// the display name. Employees use "name"; the other roles use "fullname".
type roleTable struct {
	table      string
	nameColumn string
}

var roleTables = map[models.Role]roleTable{
	models.RoleHR:       {table: "hrs", nameColumn: "fullname"},
	models.RoleEmployee: {table: "employees", nameColumn: "name"},
	models.RoleCEO:      {table: "ceos", nameColumn: "fullname"},
	models.RoleManager:  {table: "managers", nameColumn: "fullname"},
	models.RoleAdmin:    {table: "admins", nameColumn: "fullname"},
}

func tableFor(role models.Role) (roleTable, error) {
	t, ok := roleTables[role]
	if !ok {
		return roleTable{}, fmt.Errorf("unknown role %q", role)
	}
	return t, nil
}
