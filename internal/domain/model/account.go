package model

import (
	"slices"
	"time"
)

// RoleAdmin is the role granted by admin-class codes by default.
const RoleAdmin = "admin"

// Account is the redeeming party. Only the role set matters to this service.
type Account struct {
	ID        string
	Roles     []string
	UpdatedAt time.Time
}

func (a *Account) IsZero() bool { return a == nil || a.ID == "" }

func (a *Account) HasRole(role string) bool { return a != nil && slices.Contains(a.Roles, role) }

// AddRole is idempotent; it reports whether the role was new.
func (a *Account) AddRole(role string) bool {
	if a.HasRole(role) {
		return false
	}
	a.Roles = append(a.Roles, role)
	a.UpdatedAt = time.Now()
	return true
}
