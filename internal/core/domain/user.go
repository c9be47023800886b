package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role names as they appear in access-token claims.
const (
	RoleAdministrator       = "Administrator"
	RoleInternalUser        = "InternalUser"
	RoleSupervisor          = "Supervisor"
	RoleEntityAdministrator = "EntityAdministrator"
	RoleEntityEmployee      = "EntityEmployee"
	RoleExternalUser        = "ExternalUser"
)

// InternalRoles lists the regulator-staff roles exempt from tenant scoping.
var InternalRoles = []string{RoleAdministrator, RoleInternalUser, RoleSupervisor}

// ExternalRoles lists roles that represent a supervised entity and therefore
// require a non-nil SupervisedEntityID.
var ExternalRoles = []string{RoleEntityAdministrator, RoleEntityEmployee, RoleExternalUser}

// IsInternalRole reports whether name is one of the regulator-staff roles.
// Role names are compared case-insensitively everywhere in the system.
func IsInternalRole(name string) bool {
	for _, role := range InternalRoles {
		if strings.EqualFold(role, name) {
			return true
		}
	}
	return false
}

// IsExternalRole reports whether name represents a supervised-entity role.
func IsExternalRole(name string) bool {
	for _, role := range ExternalRoles {
		if strings.EqualFold(role, name) {
			return true
		}
	}
	return false
}

// User mirrors the persisted representation in the users table.
type User struct {
	ID                    int64
	Email                 string
	FirstName             string
	LastName              string
	PasswordHash          string
	IsActive              bool
	SupervisedEntityID    *int64
	FailedLoginAttempts   int
	LockedUntil           *time.Time
	RequirePasswordChange bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
	LastLoginAt           *time.Time
	LastPasswordChangeAt  *time.Time
}

// FullName returns the display name used in login responses.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsLocked reports whether the account lockout is active at the supplied moment.
func (u User) IsLocked(at time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(at)
}

// ValidateRoles enforces the tenant invariant: every external role requires a
// supervised-entity reference. Internal roles ignore the reference if present.
func (u User) ValidateRoles(roles []string) error {
	for _, role := range roles {
		if IsExternalRole(role) && u.SupervisedEntityID == nil {
			return fmt.Errorf("role %s requires a supervised entity", role)
		}
	}
	return nil
}

// SupervisedEntity is the tenant unit of data isolation. The authorization
// engine never mutates it and only compares identifiers.
type SupervisedEntity struct {
	ID       int64
	Name     string
	IsActive bool
}

// TenantID exposes the entity identifier for ownership checks.
func (e SupervisedEntity) TenantID() *int64 {
	id := e.ID
	return &id
}
