package domain

import "strings"

// ClaimSet holds the decoded, validated identity facts carried by an access
// token for one request. It is constructed fresh on every token validation and
// never persisted.
type ClaimSet struct {
	UserID             int64
	Email              string
	Roles              []string
	Permissions        []string
	SupervisedEntityID *int64
}

// HasPermission reports whether the named permission is present.
// Exact string match; no hierarchy, no wildcard.
func (c ClaimSet) HasPermission(name string) bool {
	for _, p := range c.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// HasRole reports whether the named role is present, compared case-insensitively.
func (c ClaimSet) HasRole(name string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, name) {
			return true
		}
	}
	return false
}

// IsInternal reports whether the claims carry any regulator-staff role.
func (c ClaimSet) IsInternal() bool {
	for _, r := range c.Roles {
		if IsInternalRole(r) {
			return true
		}
	}
	return false
}

// IsExternal is the complement of IsInternal.
func (c ClaimSet) IsExternal() bool {
	return !c.IsInternal()
}
