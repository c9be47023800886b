package authz

import (
	"errors"
	"testing"

	"github.com/regportal/iam-service/internal/core/domain"
)

func entityRef(id int64) *int64 {
	return &id
}

type ownedResource struct {
	tenantID *int64
}

func (r ownedResource) TenantID() *int64 {
	return r.tenantID
}

type unownedResource struct{}

func externalClaims(entityID *int64) domain.ClaimSet {
	return domain.ClaimSet{
		UserID:             7,
		Email:              "anna.nowak@bank.pl",
		Roles:              []string{domain.RoleEntityEmployee},
		Permissions:        []string{"reports.submit"},
		SupervisedEntityID: entityID,
	}
}

func TestPermissionRequirementExactMatch(t *testing.T) {
	claims := externalClaims(entityRef(123))

	if err := Evaluate(claims, nil, PermissionRequirement{Name: "reports.submit"}); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if err := Evaluate(claims, nil, PermissionRequirement{Name: "reports.Submit"}); !errors.Is(err, ErrDenied) {
		t.Fatalf("permission match must be case sensitive, got %v", err)
	}
	if err := Evaluate(claims, nil, PermissionRequirement{Name: "cases.read"}); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected deny for absent permission, got %v", err)
	}
}

func TestRoleRequirementCaseInsensitive(t *testing.T) {
	claims := externalClaims(entityRef(123))

	for _, name := range []string{"EntityEmployee", "entityemployee", "ENTITYEMPLOYEE"} {
		if err := Evaluate(claims, nil, RoleRequirement{Name: name}); err != nil {
			t.Fatalf("expected allow for role %q, got %v", name, err)
		}
	}

	if err := Evaluate(claims, nil, RoleRequirement{Name: domain.RoleAdministrator}); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected deny for absent role, got %v", err)
	}
}

func TestEntityOwnershipMatchingTenant(t *testing.T) {
	claims := externalClaims(entityRef(123))
	resource := ownedResource{tenantID: entityRef(123)}

	if err := Evaluate(claims, resource, EntityOwnershipRequirement{}); err != nil {
		t.Fatalf("expected allow for matching tenant, got %v", err)
	}
}

func TestEntityOwnershipMismatchedTenant(t *testing.T) {
	claims := externalClaims(entityRef(123))
	resource := ownedResource{tenantID: entityRef(456)}

	if err := Evaluate(claims, resource, EntityOwnershipRequirement{}); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected deny for mismatched tenant, got %v", err)
	}
}

func TestEntityOwnershipNoClaimEntity(t *testing.T) {
	claims := externalClaims(nil)

	if err := Evaluate(claims, nil, EntityOwnershipRequirement{}); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected deny without an entity claim, got %v", err)
	}
}

func TestEntityOwnershipNilResourcePassesWithEntity(t *testing.T) {
	claims := externalClaims(entityRef(123))

	if err := Evaluate(claims, nil, EntityOwnershipRequirement{}); err != nil {
		t.Fatalf("expected allow with nil resource and entity claim, got %v", err)
	}
}

func TestEntityOwnershipFailsClosedOnUnownedResource(t *testing.T) {
	claims := externalClaims(entityRef(123))

	if err := Evaluate(claims, unownedResource{}, EntityOwnershipRequirement{}); !errors.Is(err, ErrDenied) {
		t.Fatalf("resource without a tenant id must deny, got %v", err)
	}
	if err := Evaluate(claims, ownedResource{tenantID: nil}, EntityOwnershipRequirement{}); !errors.Is(err, ErrDenied) {
		t.Fatalf("resource with nil tenant id must deny, got %v", err)
	}
}

func TestEntityOwnershipAdministratorBypass(t *testing.T) {
	claims := domain.ClaimSet{
		UserID: 1,
		Roles:  []string{domain.RoleAdministrator},
	}
	resource := ownedResource{tenantID: entityRef(456)}

	if err := Evaluate(claims, resource, EntityOwnershipRequirement{}); err != nil {
		t.Fatalf("administrator must bypass tenant scoping, got %v", err)
	}
}

func TestEntityOwnershipInternalUsers(t *testing.T) {
	claims := domain.ClaimSet{
		UserID: 2,
		Roles:  []string{domain.RoleSupervisor},
	}
	resource := ownedResource{tenantID: entityRef(456)}

	if err := Evaluate(claims, resource, EntityOwnershipRequirement{AllowInternalUsers: true}); err != nil {
		t.Fatalf("internal user must pass with AllowInternalUsers, got %v", err)
	}
	if err := Evaluate(claims, resource, EntityOwnershipRequirement{}); !errors.Is(err, ErrDenied) {
		t.Fatalf("internal user without bypass and without entity claim must deny, got %v", err)
	}
}

func TestEvaluateAndSemantics(t *testing.T) {
	claims := externalClaims(entityRef(123))

	err := Evaluate(claims, nil,
		PermissionRequirement{Name: "reports.submit"},
		RoleRequirement{Name: domain.RoleEntityEmployee},
	)
	if err != nil {
		t.Fatalf("expected allow when all requirements hold, got %v", err)
	}

	err = Evaluate(claims, nil,
		PermissionRequirement{Name: "reports.submit"},
		RoleRequirement{Name: domain.RoleAdministrator},
	)
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("a single failing requirement must deny the whole evaluation, got %v", err)
	}
}

func TestEvaluateNilRequirementDenies(t *testing.T) {
	claims := externalClaims(entityRef(123))

	if err := Evaluate(claims, nil, nil); !errors.Is(err, ErrDenied) {
		t.Fatalf("nil requirement must deny, got %v", err)
	}
}
