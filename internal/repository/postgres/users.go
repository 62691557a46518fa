package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/avalon-platform/identity-service/internal/core/domain"
	"github.com/avalon-platform/identity-service/internal/core/port"
	"github.com/avalon-platform/identity-service/internal/repository"
)

// UserRepository implements port.UserRepository over PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{exec: tx, builder: r.builder}
}

// Create inserts a new user account row.
func (r *UserRepository) Create(ctx context.Context, user *domain.UserAccount) error {
	stmt, args, err := r.builder.Insert("identity.users").
		Columns("id", "username", "email", "provider", "created_at").
		Values(user.ID.String(), user.Username, user.Email.String(), string(user.Provider), time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user account with its role assignments.
func (r *UserRepository) GetByID(ctx context.Context, id domain.UserAccountID) (*domain.UserAccount, error) {
	return r.getByColumn(ctx, squirrel.Eq{"id": id.String()})
}

// GetByUsername retrieves a user account by its unique username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	return r.getByColumn(ctx, squirrel.Eq{"username": username})
}

// GetByEmail retrieves a user account by its normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email domain.Email) (*domain.UserAccount, error) {
	return r.getByColumn(ctx, squirrel.Eq{"email": email.String()})
}

func (r *UserRepository) getByColumn(ctx context.Context, where squirrel.Eq) (*domain.UserAccount, error) {
	stmt, args, err := r.builder.Select("id", "username", "email", "provider").
		From("identity.users").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var rawID, username, rawEmail, provider string
	if err := row.Scan(&rawID, &username, &rawEmail, &provider); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return r.rehydrate(ctx, rawID, username, rawEmail, provider)
}

func (r *UserRepository) rehydrate(ctx context.Context, rawID, username, rawEmail, provider string) (*domain.UserAccount, error) {
	id, err := domain.ParseUserAccountID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}

	email, err := domain.NewEmail(rawEmail)
	if err != nil {
		return nil, fmt.Errorf("parse user email: %w", err)
	}

	roleIDs, err := r.ListRoleIDs(ctx, id)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateUserAccount(id, username, email, domain.ProviderName(provider), roleIDs), nil
}

// Update modifies an existing user account row.
func (r *UserRepository) Update(ctx context.Context, user *domain.UserAccount) error {
	stmt, args, err := r.builder.Update("identity.users").
		Set("username", user.Username).
		Set("email", user.Email.String()).
		Set("provider", string(user.Provider)).
		Where(squirrel.Eq{"id": user.ID.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("update user: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a user account (cascades to user_roles and credentials via FK).
func (r *UserRepository) Delete(ctx context.Context, id domain.UserAccountID) error {
	stmt, args, err := r.builder.Delete("identity.users").
		Where(squirrel.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete user sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// AssignRole inserts the user/role pair. Duplicate inserts are safe no-ops;
// the bool reports whether a row was actually inserted.
func (r *UserRepository) AssignRole(ctx context.Context, userID domain.UserAccountID, roleID domain.RoleID) (bool, error) {
	stmt, args, err := r.builder.Insert("identity.user_roles").
		Columns("user_id", "role_id", "assigned_at").
		Values(userID.String(), roleID.String(), time.Now().UTC()).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build assign role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("assign role: %w", err)
	}

	return res.RowsAffected() > 0, nil
}

// RevokeRole deletes the user/role pair. Deleting an absent pair is a safe
// no-op; the bool reports whether a row was actually deleted.
func (r *UserRepository) RevokeRole(ctx context.Context, userID domain.UserAccountID, roleID domain.RoleID) (bool, error) {
	stmt, args, err := r.builder.Delete("identity.user_roles").
		Where(squirrel.Eq{"user_id": userID.String(), "role_id": roleID.String()}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build revoke role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("revoke role: %w", err)
	}

	return res.RowsAffected() > 0, nil
}

// ListRoleIDs returns the role identifiers assigned to the user.
func (r *UserRepository) ListRoleIDs(ctx context.Context, userID domain.UserAccountID) ([]domain.RoleID, error) {
	stmt, args, err := r.builder.Select("role_id").
		From("identity.user_roles").
		Where(squirrel.Eq{"user_id": userID.String()}).
		OrderBy("assigned_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list role ids sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query role ids: %w", err)
	}
	defer rows.Close()

	roleIDs := make([]domain.RoleID, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan role id: %w", err)
		}
		roleID, err := domain.ParseRoleID(raw)
		if err != nil {
			return nil, fmt.Errorf("parse role id: %w", err)
		}
		roleIDs = append(roleIDs, roleID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role ids: %w", err)
	}

	return roleIDs, nil
}

var _ port.UserRepository = (*UserRepository)(nil)

// CredentialRepository stores password hashes for local-credential users.
type CredentialRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewCredentialRepository constructs a PostgreSQL-backed credential repository.
func NewCredentialRepository(exec pgExecutor) *CredentialRepository {
	return &CredentialRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *CredentialRepository) WithTx(tx pgx.Tx) *CredentialRepository {
	if tx == nil {
		return r
	}
	return &CredentialRepository{exec: tx, builder: r.builder}
}

// SetPasswordHash upserts the password hash for the user.
func (r *CredentialRepository) SetPasswordHash(ctx context.Context, userID domain.UserAccountID, hash string) error {
	stmt, args, err := r.builder.Insert("identity.credentials").
		Columns("user_id", "password_hash", "updated_at").
		Values(userID.String(), hash, time.Now().UTC()).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET password_hash = EXCLUDED.password_hash, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert credential sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}

	return nil
}

// GetPasswordHash retrieves the stored password hash for the user.
func (r *CredentialRepository) GetPasswordHash(ctx context.Context, userID domain.UserAccountID) (string, error) {
	stmt, args, err := r.builder.Select("password_hash").
		From("identity.credentials").
		Where(squirrel.Eq{"user_id": userID.String()}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select credential sql: %w", err)
	}

	var hash sql.NullString
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("scan credential: %w", err)
	}

	return hash.String, nil
}

// DeletePasswordHash removes the stored password hash for the user.
func (r *CredentialRepository) DeletePasswordHash(ctx context.Context, userID domain.UserAccountID) error {
	stmt, args, err := r.builder.Delete("identity.credentials").
		Where(squirrel.Eq{"user_id": userID.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete credential sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}

	return nil
}

var _ port.CredentialRepository = (*CredentialRepository)(nil)
