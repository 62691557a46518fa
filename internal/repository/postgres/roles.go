package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/avalon-platform/identity-service/internal/core/domain"
	"github.com/avalon-platform/identity-service/internal/core/port"
	"github.com/avalon-platform/identity-service/internal/repository"
)

// RoleRepository implements port.RoleRepository over PostgreSQL.
type RoleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a PostgreSQL-backed role repository.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	return &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{exec: tx, builder: r.builder}
}

// Create inserts a new role.
func (r *RoleRepository) Create(ctx context.Context, role *domain.Role) error {
	stmt, args, err := r.builder.Insert("identity.roles").
		Columns("id", "name", "normalized_name", "description", "is_system_defined").
		Values(role.ID.String(), role.Name, role.NormalizedName, role.Description, role.IsSystemDefined).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert role: %w", err)
	}

	return nil
}

// List retrieves all roles sorted by normalized name.
func (r *RoleRepository) List(ctx context.Context) ([]*domain.Role, error) {
	stmt, args, err := r.builder.Select("id", "name", "description", "is_system_defined").
		From("identity.roles").
		OrderBy("normalized_name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	return r.scanRoles(ctx, rows)
}

// GetByID retrieves a role with its permission attachments.
func (r *RoleRepository) GetByID(ctx context.Context, id domain.RoleID) (*domain.Role, error) {
	return r.getByColumn(ctx, squirrel.Eq{"id": id.String()})
}

// GetByName retrieves a role by its normalized name.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	return r.getByColumn(ctx, squirrel.Eq{"normalized_name": domain.NormalizeRoleName(name)})
}

func (r *RoleRepository) getByColumn(ctx context.Context, where squirrel.Eq) (*domain.Role, error) {
	stmt, args, err := r.builder.Select("id", "name", "description", "is_system_defined").
		From("identity.roles").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		rawID, name     string
		description     sql.NullString
		isSystemDefined bool
	)
	if err := row.Scan(&rawID, &name, &description, &isSystemDefined); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}

	return r.rehydrate(ctx, rawID, name, description.String, isSystemDefined)
}

func (r *RoleRepository) rehydrate(ctx context.Context, rawID, name, description string, isSystemDefined bool) (*domain.Role, error) {
	id, err := domain.ParseRoleID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse role id: %w", err)
	}

	permissionIDs, err := r.listPermissionIDs(ctx, id)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateRole(id, name, description, isSystemDefined, permissionIDs), nil
}

func (r *RoleRepository) listPermissionIDs(ctx context.Context, roleID domain.RoleID) ([]domain.PermissionID, error) {
	stmt, args, err := r.builder.Select("permission_id").
		From("identity.role_permissions").
		Where(squirrel.Eq{"role_id": roleID.String()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list permission ids sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query permission ids: %w", err)
	}
	defer rows.Close()

	ids := make([]domain.PermissionID, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan permission id: %w", err)
		}
		id, err := domain.ParsePermissionID(raw)
		if err != nil {
			return nil, fmt.Errorf("parse permission id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permission ids: %w", err)
	}

	return ids, nil
}

// Update modifies an existing role.
func (r *RoleRepository) Update(ctx context.Context, role *domain.Role) error {
	stmt, args, err := r.builder.Update("identity.roles").
		Set("name", role.Name).
		Set("normalized_name", role.NormalizedName).
		Set("description", role.Description).
		Where(squirrel.Eq{"id": role.ID.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("update role: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a role by ID (cascades to user_roles and role_permissions via FK).
func (r *RoleRepository) Delete(ctx context.Context, id domain.RoleID) error {
	stmt, args, err := r.builder.Delete("identity.roles").
		Where(squirrel.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// AttachPermissions links the provided permissions to the role and returns
// the number of rows inserted. Existing pairs are skipped.
func (r *RoleRepository) AttachPermissions(ctx context.Context, roleID domain.RoleID, permissionIDs []domain.PermissionID) (int, error) {
	if len(permissionIDs) == 0 {
		return 0, nil
	}

	query := r.builder.Insert("identity.role_permissions").
		Columns("role_id", "permission_id")

	for _, permissionID := range permissionIDs {
		query = query.Values(roleID.String(), permissionID.String())
	}

	stmt, args, err := query.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build attach permissions sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("attach permissions: %w", err)
	}

	return int(res.RowsAffected()), nil
}

// DetachPermissions removes the provided permissions from the role and
// returns the number of rows deleted.
func (r *RoleRepository) DetachPermissions(ctx context.Context, roleID domain.RoleID, permissionIDs []domain.PermissionID) (int, error) {
	if len(permissionIDs) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(permissionIDs))
	for _, permissionID := range permissionIDs {
		ids = append(ids, permissionID.String())
	}

	stmt, args, err := r.builder.Delete("identity.role_permissions").
		Where(squirrel.Eq{"role_id": roleID.String()}).
		Where(squirrel.Eq{"permission_id": ids}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build detach permissions sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("detach permissions: %w", err)
	}

	return int(res.RowsAffected()), nil
}

// ListByUser returns roles assigned to the specified user.
func (r *RoleRepository) ListByUser(ctx context.Context, userID domain.UserAccountID) ([]*domain.Role, error) {
	stmt, args, err := r.builder.Select("r.id", "r.name", "r.description", "r.is_system_defined").
		From("identity.roles r").
		Join("identity.user_roles ur ON ur.role_id = r.id").
		Where(squirrel.Eq{"ur.user_id": userID.String()}).
		OrderBy("r.normalized_name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build roles by user sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles by user: %w", err)
	}
	defer rows.Close()

	return r.scanRoles(ctx, rows)
}

func (r *RoleRepository) scanRoles(ctx context.Context, rows pgx.Rows) ([]*domain.Role, error) {
	type roleRow struct {
		rawID, name, description string
		isSystemDefined          bool
	}

	raw := make([]roleRow, 0)
	for rows.Next() {
		var (
			row         roleRow
			description sql.NullString
		)
		if err := rows.Scan(&row.rawID, &row.name, &description, &row.isSystemDefined); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		row.description = description.String
		raw = append(raw, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	rows.Close()

	roles := make([]*domain.Role, 0, len(raw))
	for _, row := range raw {
		role, err := r.rehydrate(ctx, row.rawID, row.name, row.description, row.isSystemDefined)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}

	return roles, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
