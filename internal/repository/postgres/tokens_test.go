package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/regportal/iam-service/internal/core/domain"
	"github.com/regportal/iam-service/internal/core/port"
	"github.com/regportal/iam-service/internal/repository"
)

func newMockTokenRepository(t *testing.T) (*TokenRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	repo := &TokenRepository{
		db:      mock,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	return repo, mock
}

func TestTokenRepository_Create(t *testing.T) {
	repo, mock := newMockTokenRepository(t)

	now := time.Now().UTC()
	ip := "203.0.113.7"
	token := domain.RefreshToken{
		ID:          "token-1",
		UserID:      42,
		TokenHash:   "hash-1",
		CreatedAt:   now,
		ExpiresAt:   now.Add(24 * time.Hour),
		CreatedByIP: &ip,
	}

	mock.ExpectExec(`INSERT INTO iam\.refresh_tokens`).
		WithArgs("token-1", int64(42), "hash-1", now, now.Add(24*time.Hour), ip, nil, nil, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), token); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_GetByHash(t *testing.T) {
	repo, mock := newMockTokenRepository(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows(tokenColumns).AddRow(
		"token-1", int64(42), "hash-1", now, now.Add(24*time.Hour), nil, nil, nil, nil,
	)

	mock.ExpectQuery(`SELECT .* FROM iam\.refresh_tokens WHERE token_hash = \$1`).
		WithArgs("hash-1").
		WillReturnRows(rows)

	token, err := repo.GetByHash(context.Background(), "hash-1")
	if err != nil {
		t.Fatalf("GetByHash returned error: %v", err)
	}
	if token.ID != "token-1" || token.UserID != 42 {
		t.Fatalf("unexpected token %+v", token)
	}
	if token.IsRevoked() {
		t.Fatal("token must not report revoked")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_GetByHashNotFound(t *testing.T) {
	repo, mock := newMockTokenRepository(t)

	mock.ExpectQuery(`SELECT .* FROM iam\.refresh_tokens`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByHash(context.Background(), "missing")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_RotateSuccess(t *testing.T) {
	repo, mock := newMockTokenRepository(t)

	now := time.Now().UTC()
	successor := domain.RefreshToken{
		ID:        "token-2",
		UserID:    42,
		TokenHash: "hash-2",
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE iam\.refresh_tokens SET`).
		WithArgs(pgxmock.AnyArg(), domain.RevocationReasonRotated, "token-2", "token-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO iam\.refresh_tokens`).
		WithArgs("token-2", int64(42), "hash-2", now, now.Add(24*time.Hour), nil, nil, nil, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	if err := repo.Rotate(context.Background(), "token-1", successor); err != nil {
		t.Fatalf("Rotate returned error: %v", err)
	}
}

func TestTokenRepository_RotateConflict(t *testing.T) {
	repo, mock := newMockTokenRepository(t)

	now := time.Now().UTC()
	successor := domain.RefreshToken{
		ID:        "token-2",
		UserID:    42,
		TokenHash: "hash-2",
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE iam\.refresh_tokens SET`).
		WithArgs(pgxmock.AnyArg(), domain.RevocationReasonRotated, "token-2", "token-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), "token-1", successor)
	if !errors.Is(err, port.ErrRotationConflict) {
		t.Fatalf("expected ErrRotationConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_RevokeChain(t *testing.T) {
	repo, mock := newMockTokenRepository(t)

	rows := pgxmock.NewRows([]string{"count"}).AddRow(3)
	mock.ExpectQuery(`WITH RECURSIVE chain`).
		WithArgs("token-1", pgxmock.AnyArg(), domain.RevocationReasonReuse).
		WillReturnRows(rows)

	count, err := repo.RevokeChain(context.Background(), "token-1", domain.RevocationReasonReuse)
	if err != nil {
		t.Fatalf("RevokeChain returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 revoked, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_RevokeAllForUser(t *testing.T) {
	repo, mock := newMockTokenRepository(t)

	mock.ExpectExec(`UPDATE iam\.refresh_tokens SET`).
		WithArgs(pgxmock.AnyArg(), domain.RevocationReasonLogout, int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	count, err := repo.RevokeAllForUser(context.Background(), 42, domain.RevocationReasonLogout)
	if err != nil {
		t.Fatalf("RevokeAllForUser returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 revoked, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
