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

var tokenColumns = []string{
	"id",
	"user_id",
	"token_hash",
	"created_at",
	"expires_at",
	"created_by_ip",
	"revoked_at",
	"revocation_reason",
	"replaced_by_id",
}

// TokenRepository implements port.TokenRepository using PostgreSQL.
type TokenRepository struct {
	db      pgDatabase
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a new refresh-token repository.
func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{
		db:      pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a refresh-token record.
func (r *TokenRepository) Create(ctx context.Context, token domain.RefreshToken) error {
	stmt, args, err := r.insertBuilder(token).ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := r.db.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// GetByHash retrieves a refresh-token record by its hashed value.
func (r *TokenRepository) GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	stmt, args, err := r.builder.
		Select(tokenColumns...).
		From("iam.refresh_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token sql: %w", err)
	}

	row := r.db.QueryRow(ctx, stmt, args...)

	var (
		token     domain.RefreshToken
		ip        sql.NullString
		revokedAt sql.NullTime
		reason    sql.NullString
		replaced  sql.NullString
	)

	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.CreatedAt,
		&token.ExpiresAt,
		&ip,
		&revokedAt,
		&reason,
		&replaced,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	token.CreatedByIP = nullableStringPtr(ip)
	token.RevokedAt = nullableTimePtr(revokedAt)
	token.RevocationReason = nullableStringPtr(reason)
	token.ReplacedByID = nullableStringPtr(replaced)

	return &token, nil
}

// Rotate revokes the presented record and inserts its successor in one
// transaction. The revocation is conditional on revoked_at still being null;
// when a concurrent refresh already claimed the record nothing is written and
// ErrRotationConflict is returned.
func (r *TokenRepository) Rotate(ctx context.Context, oldID string, successor domain.RefreshToken) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	revokeStmt, revokeArgs, err := r.builder.Update("iam.refresh_tokens").
		Set("revoked_at", time.Now().UTC()).
		Set("revocation_reason", domain.RevocationReasonRotated).
		Set("replaced_by_id", successor.ID).
		Where(squirrel.Eq{"id": oldID}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build rotate revoke sql: %w", err)
	}

	ct, err := tx.Exec(ctx, revokeStmt, revokeArgs...)
	if err != nil {
		return fmt.Errorf("revoke rotated token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return port.ErrRotationConflict
	}

	insertStmt, insertArgs, err := r.insertBuilder(successor).ToSql()
	if err != nil {
		return fmt.Errorf("build rotate insert sql: %w", err)
	}
	if _, err := tx.Exec(ctx, insertStmt, insertArgs...); err != nil {
		return fmt.Errorf("insert successor token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rotation: %w", err)
	}

	return nil
}

// Revoke marks a single record revoked. Already-revoked and unknown records
// succeed silently.
func (r *TokenRepository) Revoke(ctx context.Context, id string, reason string) error {
	stmt, args, err := r.builder.Update("iam.refresh_tokens").
		Set("revoked_at", time.Now().UTC()).
		Set("revocation_reason", reason).
		Where(squirrel.Eq{"id": id}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke refresh token sql: %w", err)
	}

	if _, err := r.db.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

// RevokeChain revokes every unrevoked record in the rotation chain containing
// the given record, walking replaced-by links forward and backward.
func (r *TokenRepository) RevokeChain(ctx context.Context, id string, reason string) (int, error) {
	stmt := `
		WITH RECURSIVE chain AS (
			SELECT id, replaced_by_id
			  FROM iam.refresh_tokens
			 WHERE id = $1
			UNION
			SELECT t.id, t.replaced_by_id
			  FROM iam.refresh_tokens t
			  JOIN chain c ON t.id = c.replaced_by_id OR t.replaced_by_id = c.id
		), updated AS (
			UPDATE iam.refresh_tokens
			   SET revoked_at = $2,
			       revocation_reason = $3
			 WHERE id IN (SELECT id FROM chain)
			   AND revoked_at IS NULL
			 RETURNING 1
		)
		SELECT count(*) FROM updated
	`

	var count int
	if err := r.db.QueryRow(ctx, stmt, id, time.Now().UTC(), reason).Scan(&count); err != nil {
		return 0, fmt.Errorf("revoke token chain: %w", err)
	}

	return count, nil
}

// RevokeAllForUser revokes every unrevoked record the user owns and returns
// how many were affected.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID int64, reason string) (int, error) {
	stmt, args, err := r.builder.Update("iam.refresh_tokens").
		Set("revoked_at", time.Now().UTC()).
		Set("revocation_reason", reason).
		Where(squirrel.Eq{"user_id": userID}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke user tokens sql: %w", err)
	}

	ct, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

func (r *TokenRepository) insertBuilder(token domain.RefreshToken) squirrel.InsertBuilder {
	return r.builder.Insert("iam.refresh_tokens").
		Columns(tokenColumns...).
		Values(
			token.ID,
			token.UserID,
			token.TokenHash,
			token.CreatedAt.UTC(),
			token.ExpiresAt.UTC(),
			optionalString(token.CreatedByIP),
			optionalTime(token.RevokedAt),
			optionalString(token.RevocationReason),
			optionalString(token.ReplacedByID),
		)
}

var _ port.TokenRepository = (*TokenRepository)(nil)
