// Package identity exposes the active request's claim set as a read-only
// facade carried on the context.
package identity

import (
	"context"

	"github.com/regportal/iam-service/internal/core/domain"
)

type identityContextKey struct{}

// Identity is a read-only view over a request's claim set. The zero value is
// the anonymous identity and every accessor is safe on it.
type Identity struct {
	claims *domain.ClaimSet
}

// Anonymous returns the unauthenticated identity.
func Anonymous() Identity {
	return Identity{}
}

// New wraps a validated claim set.
func New(claims domain.ClaimSet) Identity {
	return Identity{claims: &claims}
}

// WithIdentity attaches the identity to the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext extracts the identity, falling back to anonymous.
func FromContext(ctx context.Context) Identity {
	if ctx == nil {
		return Anonymous()
	}
	if id, ok := ctx.Value(identityContextKey{}).(Identity); ok {
		return id
	}
	return Anonymous()
}

// IsAuthenticated reports whether a claim set is present.
func (id Identity) IsAuthenticated() bool {
	return id.claims != nil
}

// Claims returns a copy of the underlying claim set and whether one exists.
func (id Identity) Claims() (domain.ClaimSet, bool) {
	if id.claims == nil {
		return domain.ClaimSet{}, false
	}
	return *id.claims, true
}

// UserID returns the authenticated user id, zero when anonymous.
func (id Identity) UserID() int64 {
	if id.claims == nil {
		return 0
	}
	return id.claims.UserID
}

// Email returns the authenticated email, empty when anonymous.
func (id Identity) Email() string {
	if id.claims == nil {
		return ""
	}
	return id.claims.Email
}

// SupervisedEntityID returns the tenant reference, nil when absent.
func (id Identity) SupervisedEntityID() *int64 {
	if id.claims == nil || id.claims.SupervisedEntityID == nil {
		return nil
	}
	entityID := *id.claims.SupervisedEntityID
	return &entityID
}

// Roles returns the role names carried by the token.
func (id Identity) Roles() []string {
	if id.claims == nil {
		return nil
	}
	return append([]string(nil), id.claims.Roles...)
}

// Permissions returns the permission names carried by the token.
func (id Identity) Permissions() []string {
	if id.claims == nil {
		return nil
	}
	return append([]string(nil), id.claims.Permissions...)
}

// HasPermission reports whether the named permission is present.
func (id Identity) HasPermission(name string) bool {
	return id.claims != nil && id.claims.HasPermission(name)
}

// HasRole reports whether the named role is present (case-insensitive).
func (id Identity) HasRole(name string) bool {
	return id.claims != nil && id.claims.HasRole(name)
}

// IsInternalUser reports whether the roles intersect the regulator-staff set.
func (id Identity) IsInternalUser() bool {
	return id.claims != nil && id.claims.IsInternal()
}

// IsExternalUser reports whether the identity is authenticated and not internal.
func (id Identity) IsExternalUser() bool {
	return id.claims != nil && id.claims.IsExternal()
}
