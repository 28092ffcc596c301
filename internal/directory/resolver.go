// Package directory maps a recognised gallery name to an HR account.
package directory

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
)

// RoleLister reads the display names held in one role table. Rows come back
// ordered by email.
type RoleLister interface {
	ListRole(ctx context.Context, role models.Role) ([]models.Identity, error)
}

// Resolver finds the account behind a gallery name by scanning the role
// tables in priority order.
type Resolver struct {
	roles RoleLister
	order []models.Role
}

// NewResolver scans models.Roles order: HR, Employee, CEO, Manager, Admin.
func NewResolver(roles RoleLister) *Resolver {
	return &Resolver{roles: roles, order: models.Roles}
}

// Resolve returns the first identity whose display name has a
// whitespace-separated token starting with name, compared case-insensitively.
// It returns nil when no table has a hit.
func (r *Resolver) Resolve(ctx context.Context, name string) (*models.Identity, error) {
	// Casers carry state and are not shared between goroutines.
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(name))
	if needle == "" {
		return nil, nil
	}

	for _, role := range r.order {
		rows, err := r.roles.ListRole(ctx, role)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", role, err)
		}
		for _, row := range rows {
			if tokenHasPrefix(fold, row.DisplayName, needle) {
				id := row
				id.Role = role
				return &id, nil
			}
		}
	}
	return nil, nil
}

func tokenHasPrefix(fold cases.Caser, displayName, needle string) bool {
	for _, tok := range strings.Fields(displayName) {
		if strings.HasPrefix(fold.String(tok), needle) {
			return true
		}
	}
	return false
}
