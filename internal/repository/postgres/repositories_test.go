package postgres

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/avalon-platform/identity-service/internal/core/domain"
	"github.com/avalon-platform/identity-service/internal/core/port"
)

func newRepositoriesForTest(t *testing.T) (*Repositories, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewRepositories(mock), mock
}

func TestWithinTxCommitsUserAndCredential(t *testing.T) {
	repos, mock := newRepositoriesForTest(t)
	account := testAccount(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO identity.users").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO identity.credentials").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := repos.WithinTx(context.Background(), func(tx port.RepositorySet) error {
		if err := tx.Users.Create(context.Background(), account); err != nil {
			return err
		}
		return tx.Credentials.SetPasswordHash(context.Background(), account.ID, "argon2id$hash")
	})
	if err != nil {
		t.Fatalf("WithinTx returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	repos, mock := newRepositoriesForTest(t)
	account := testAccount(t)
	boom := errors.New("credential write failed")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO identity.users").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO identity.credentials").
		WillReturnError(boom)
	mock.ExpectRollback()

	err := repos.WithinTx(context.Background(), func(tx port.RepositorySet) error {
		if err := tx.Users.Create(context.Background(), account); err != nil {
			return err
		}
		return tx.Credentials.SetPasswordHash(context.Background(), account.ID, "argon2id$hash")
	})
	if err == nil {
		t.Fatal("expected WithinTx to surface the failure")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithinTxBeginFailure(t *testing.T) {
	repos, mock := newRepositoriesForTest(t)
	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	err := repos.WithinTx(context.Background(), func(tx port.RepositorySet) error {
		t.Fatal("fn must not run when Begin fails")
		return nil
	})
	if err == nil {
		t.Fatal("expected WithinTx to fail when Begin fails")
	}
}

func TestWithinTxRollsBackRoleAttach(t *testing.T) {
	repos, mock := newRepositoriesForTest(t)
	role, err := domain.NewRole("Editors", "", false)
	if err != nil {
		t.Fatalf("NewRole: %v", err)
	}
	permissionID := domain.NewPermissionID()
	boom := errors.New("attach failed")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO identity.roles").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO identity.role_permissions").
		WillReturnError(boom)
	mock.ExpectRollback()

	err = repos.WithinTx(context.Background(), func(tx port.RepositorySet) error {
		if err := tx.Roles.Create(context.Background(), role); err != nil {
			return err
		}
		_, err := tx.Roles.AttachPermissions(context.Background(), role.ID, []domain.PermissionID{permissionID})
		return err
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
