// Package authz implements the portal's authorization engine: pure,
// synchronous allow/deny decisions over a claim set, a declared requirement,
// and an optional target resource. Decisions perform no I/O and are safe to
// evaluate concurrently.
package authz

import (
	"errors"

	"github.com/regportal/iam-service/internal/core/domain"
)

// ErrDenied is the only error surfaced to callers. It deliberately carries no
// detail about which requirement failed.
var ErrDenied = errors.New("authz: denied")

// TenantOwned is implemented by resource types that are scoped to a supervised
// entity. A type that does not implement it is treated as exposing no tenant
// id, and an ownership check against it fails closed.
type TenantOwned interface {
	TenantID() *int64
}

// Requirement is one declarative condition attached to an operation. The set
// of kinds is closed: permission, role, and entity ownership.
type Requirement interface {
	satisfiedBy(claims domain.ClaimSet, resource any) bool
}

// PermissionRequirement succeeds iff the named permission is present in the
// claim set. Exact string match.
type PermissionRequirement struct {
	Name string
}

func (r PermissionRequirement) satisfiedBy(claims domain.ClaimSet, _ any) bool {
	return claims.HasPermission(r.Name)
}

// RoleRequirement succeeds iff the named role is present in the claim set,
// compared case-insensitively.
type RoleRequirement struct {
	Name string
}

func (r RoleRequirement) satisfiedBy(claims domain.ClaimSet, _ any) bool {
	return claims.HasRole(r.Name)
}

// EntityOwnershipRequirement enforces tenant isolation for a target resource.
//
// Administrators always pass. When AllowInternalUsers is set, any regulator
// staff role passes. Everyone else must carry a supervised-entity id in their
// claims; when a resource is supplied it must expose a matching tenant id.
// A supplied resource without a tenant id is denied. When no resource is
// supplied, the presence of a tenant id alone succeeds and the actual match is
// the caller's responsibility.
type EntityOwnershipRequirement struct {
	AllowInternalUsers bool
}

func (r EntityOwnershipRequirement) satisfiedBy(claims domain.ClaimSet, resource any) bool {
	if claims.HasRole(domain.RoleAdministrator) {
		return true
	}
	if r.AllowInternalUsers && claims.IsInternal() {
		return true
	}
	if claims.SupervisedEntityID == nil {
		return false
	}
	if resource == nil {
		return true
	}
	owned, ok := resource.(TenantOwned)
	if !ok {
		return false
	}
	tenantID := owned.TenantID()
	if tenantID == nil {
		return false
	}
	return *tenantID == *claims.SupervisedEntityID
}

// Evaluate checks every requirement against the claim set and optional
// resource with AND semantics: a deny on any one requirement denies the whole
// operation. There is no OR or fallback path.
func Evaluate(claims domain.ClaimSet, resource any, requirements ...Requirement) error {
	for _, req := range requirements {
		if req == nil {
			return ErrDenied
		}
		if !req.satisfiedBy(claims, resource) {
			return ErrDenied
		}
	}
	return nil
}
