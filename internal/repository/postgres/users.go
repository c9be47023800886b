package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/regportal/iam-service/internal/core/domain"
	"github.com/regportal/iam-service/internal/core/port"
	"github.com/regportal/iam-service/internal/repository"
)

var userColumns = []string{
	"id",
	"email",
	"first_name",
	"last_name",
	"password_hash",
	"is_active",
	"supervised_entity_id",
	"failed_login_attempts",
	"locked_until",
	"require_password_change",
	"created_at",
	"updated_at",
	"last_login_at",
	"last_password_change_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	db      pgDatabase
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{
		db:      pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("iam.users").
		Where("lower(email) = lower(?)", email).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanUser(r.db.QueryRow(ctx, stmt, args...))
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("iam.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanUser(r.db.QueryRow(ctx, stmt, args...))
}

// RecordFailedLogin increments the failed-attempt counter and arms the lock
// when the counter reaches the threshold. Single statement so concurrent
// failures serialize on the row and the threshold check cannot race.
func (r *UserRepository) RecordFailedLogin(ctx context.Context, userID int64, threshold int, lockFor time.Duration) (port.LockoutState, error) {
	now := time.Now().UTC()
	lockUntil := now.Add(lockFor)

	stmt := `
		UPDATE iam.users
		   SET failed_login_attempts = failed_login_attempts + 1,
		       locked_until = CASE
		           WHEN failed_login_attempts + 1 >= $2 THEN $3
		           ELSE locked_until
		       END,
		       updated_at = $4
		 WHERE id = $1
		RETURNING failed_login_attempts, locked_until
	`

	var (
		state  port.LockoutState
		locked sql.NullTime
	)
	if err := r.db.QueryRow(ctx, stmt, userID, threshold, lockUntil, now).Scan(&state.FailedAttempts, &locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return port.LockoutState{}, repository.ErrNotFound
		}
		return port.LockoutState{}, fmt.Errorf("record failed login: %w", err)
	}
	state.LockedUntil = nullableTimePtr(locked)

	return state, nil
}

// ResetLoginState clears the lockout counters and stamps the successful login.
func (r *UserRepository) ResetLoginState(ctx context.Context, userID int64, loginAt time.Time) error {
	stmt, args, err := r.builder.Update("iam.users").
		Set("failed_login_attempts", 0).
		Set("locked_until", nil).
		Set("last_login_at", loginAt.UTC()).
		Set("updated_at", loginAt.UTC()).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset login state sql: %w", err)
	}

	ct, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("reset login state: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Unlock clears the lockout counters without touching the login timestamp.
func (r *UserRepository) Unlock(ctx context.Context, userID int64) error {
	stmt, args, err := r.builder.Update("iam.users").
		Set("failed_login_attempts", 0).
		Set("locked_until", nil).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build unlock user sql: %w", err)
	}

	ct, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("unlock user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdatePassword stores a new password hash and clears the change requirement.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("iam.users").
		Set("password_hash", passwordHash).
		Set("require_password_change", false).
		Set("last_password_change_at", changedAt.UTC()).
		Set("updated_at", changedAt.UTC()).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	ct, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *UserRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user        domain.User
		entityID    sql.NullInt64
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
		lastChange  sql.NullTime
	)

	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.IsActive,
		&entityID,
		&user.FailedLoginAttempts,
		&lockedUntil,
		&user.RequirePasswordChange,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLogin,
		&lastChange,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.SupervisedEntityID = nullableInt64Ptr(entityID)
	user.LockedUntil = nullableTimePtr(lockedUntil)
	user.LastLoginAt = nullableTimePtr(lastLogin)
	user.LastPasswordChangeAt = nullableTimePtr(lastChange)

	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
