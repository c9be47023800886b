package port

import "context"

// RBACRepository resolves role and permission names for a user. The portal's
// role/permission assignments are managed by the administrative CRUD surface;
// this subsystem only reads them to build claim sets.
type RBACRepository interface {
	ListRoleNames(ctx context.Context, userID int64) ([]string, error)
	ListPermissionNames(ctx context.Context, userID int64) ([]string, error)
}
