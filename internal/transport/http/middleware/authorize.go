package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/regportal/iam-service/internal/core/authz"
	"github.com/regportal/iam-service/internal/identity"
)

// RequirePolicies resolves the named policy keys once at route registration
// and evaluates them against the request identity. Unknown policy keys panic
// during startup rather than silently allowing traffic.
func RequirePolicies(keys ...string) gin.HandlerFunc {
	requirements, err := authz.ParsePolicies(keys...)
	if err != nil {
		panic(err)
	}
	return requireRequirements(requirements...)
}

// RequirePermission guards a route with a single permission requirement.
func RequirePermission(name string) gin.HandlerFunc {
	return requireRequirements(authz.PermissionRequirement{Name: name})
}

// RequireRole guards a route with a single role requirement.
func RequireRole(name string) gin.HandlerFunc {
	return requireRequirements(authz.RoleRequirement{Name: name})
}

// RequireEntityContext guards a route with the tenant-scoping requirement.
// Route-level evaluation only checks that the caller carries an entity
// context; per-resource ownership is enforced where the resource is loaded.
func RequireEntityContext(allowInternal bool) gin.HandlerFunc {
	return requireRequirements(authz.EntityOwnershipRequirement{AllowInternalUsers: allowInternal})
}

func requireRequirements(requirements ...authz.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity.FromContext(c.Request.Context())
		claims, ok := id.Claims()
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		if err := authz.Evaluate(claims, nil, requirements...); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}
