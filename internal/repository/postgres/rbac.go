package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/regportal/iam-service/internal/core/port"
)

// RBACRepository resolves role and permission names from the portal's
// assignment tables.
type RBACRepository struct {
	db      pgDatabase
	builder squirrel.StatementBuilderType
}

// NewRBACRepository constructs a new RBAC read repository.
func NewRBACRepository(pool *pgxpool.Pool) *RBACRepository {
	return &RBACRepository{
		db:      pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ListRoleNames returns the names of the roles assigned to the user.
func (r *RBACRepository) ListRoleNames(ctx context.Context, userID int64) ([]string, error) {
	stmt, args, err := r.builder.
		Select("r.name").
		From("iam.roles r").
		Join("iam.user_roles ur ON ur.role_id = r.id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("r.name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select roles sql: %w", err)
	}

	return r.listNames(ctx, stmt, args, "roles")
}

// ListPermissionNames returns the distinct permission names granted through
// the user's roles.
func (r *RBACRepository) ListPermissionNames(ctx context.Context, userID int64) ([]string, error) {
	stmt, args, err := r.builder.
		Select("DISTINCT p.name").
		From("iam.permissions p").
		Join("iam.role_permissions rp ON rp.permission_id = p.id").
		Join("iam.user_roles ur ON ur.role_id = rp.role_id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("p.name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permissions sql: %w", err)
	}

	return r.listNames(ctx, stmt, args, "permissions")
}

func (r *RBACRepository) listNames(ctx context.Context, stmt string, args []any, label string) ([]string, error) {
	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", label, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan %s: %w", label, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", label, err)
	}

	return names, nil
}

var _ port.RBACRepository = (*RBACRepository)(nil)
