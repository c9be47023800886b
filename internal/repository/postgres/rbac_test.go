package postgres

import (
	"context"
	"testing"

	squirrel "github.com/Masterminds/squirrel"
	pgxmock "github.com/pashagolub/pgxmock/v2"
)

func newMockRBACRepository(t *testing.T) (*RBACRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	repo := &RBACRepository{
		db:      mock,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	return repo, mock
}

func TestRBACRepository_ListRoleNames(t *testing.T) {
	repo, mock := newMockRBACRepository(t)

	rows := pgxmock.NewRows([]string{"name"}).
		AddRow("EntityAdministrator").
		AddRow("EntityEmployee")

	mock.ExpectQuery(`SELECT r\.name FROM iam\.roles r JOIN iam\.user_roles ur`).
		WithArgs(int64(42)).
		WillReturnRows(rows)

	names, err := repo.ListRoleNames(context.Background(), 42)
	if err != nil {
		t.Fatalf("ListRoleNames returned error: %v", err)
	}
	if len(names) != 2 || names[0] != "EntityAdministrator" || names[1] != "EntityEmployee" {
		t.Fatalf("unexpected role names: %v", names)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRBACRepository_ListPermissionNames(t *testing.T) {
	repo, mock := newMockRBACRepository(t)

	rows := pgxmock.NewRows([]string{"name"}).
		AddRow("cases.read").
		AddRow("reports.submit")

	mock.ExpectQuery(`SELECT DISTINCT p\.name FROM iam\.permissions p`).
		WithArgs(int64(42)).
		WillReturnRows(rows)

	names, err := repo.ListPermissionNames(context.Background(), 42)
	if err != nil {
		t.Fatalf("ListPermissionNames returned error: %v", err)
	}
	if len(names) != 2 || names[1] != "reports.submit" {
		t.Fatalf("unexpected permission names: %v", names)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRBACRepository_ListRoleNamesEmpty(t *testing.T) {
	repo, mock := newMockRBACRepository(t)

	mock.ExpectQuery(`SELECT r\.name FROM iam\.roles r`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"name"}))

	names, err := repo.ListRoleNames(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListRoleNames returned error: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no roles, got %v", names)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
