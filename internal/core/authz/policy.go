package authz

import (
	"fmt"
	"strings"
)

// Policy keys are the declarative per-operation descriptors consumed by the
// HTTP layer: "permission:<name>", "role:<name>",
// "entity-context:allow-internal" and "entity-context:strict".
const (
	policyPrefixPermission = "permission:"
	policyPrefixRole       = "role:"

	PolicyEntityContextAllowInternal = "entity-context:allow-internal"
	PolicyEntityContextStrict        = "entity-context:strict"
)

// PermissionPolicy builds the policy key for a permission requirement.
func PermissionPolicy(name string) string {
	return policyPrefixPermission + name
}

// RolePolicy builds the policy key for a role requirement.
func RolePolicy(name string) string {
	return policyPrefixRole + name
}

// ParsePolicy maps a policy key to its requirement value.
func ParsePolicy(key string) (Requirement, error) {
	switch {
	case strings.HasPrefix(key, policyPrefixPermission):
		name := strings.TrimPrefix(key, policyPrefixPermission)
		if name == "" {
			return nil, fmt.Errorf("authz: empty permission in policy %q", key)
		}
		return PermissionRequirement{Name: name}, nil
	case strings.HasPrefix(key, policyPrefixRole):
		name := strings.TrimPrefix(key, policyPrefixRole)
		if name == "" {
			return nil, fmt.Errorf("authz: empty role in policy %q", key)
		}
		return RoleRequirement{Name: name}, nil
	case key == PolicyEntityContextAllowInternal:
		return EntityOwnershipRequirement{AllowInternalUsers: true}, nil
	case key == PolicyEntityContextStrict:
		return EntityOwnershipRequirement{AllowInternalUsers: false}, nil
	default:
		return nil, fmt.Errorf("authz: unknown policy %q", key)
	}
}

// ParsePolicies parses every key, failing on the first unknown one.
func ParsePolicies(keys ...string) ([]Requirement, error) {
	requirements := make([]Requirement, 0, len(keys))
	for _, key := range keys {
		req, err := ParsePolicy(key)
		if err != nil {
			return nil, err
		}
		requirements = append(requirements, req)
	}
	return requirements, nil
}
