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

// PermissionRepository implements port.PermissionRepository over PostgreSQL.
type PermissionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPermissionRepository constructs a permission repository instance.
func NewPermissionRepository(exec pgExecutor) *PermissionRepository {
	return &PermissionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *PermissionRepository) WithTx(tx pgx.Tx) *PermissionRepository {
	if tx == nil {
		return r
	}
	return &PermissionRepository{exec: tx, builder: r.builder}
}

// Create inserts a new permission row.
func (r *PermissionRepository) Create(ctx context.Context, permission *domain.Permission) error {
	stmt, args, err := r.builder.Insert("identity.permissions").
		Columns("id", "name", "normalized_name", "description", "permission_type", "is_system_defined").
		Values(
			permission.ID.String(),
			permission.Name.String(),
			permission.Name.Normalized(),
			permission.Description,
			string(permission.Type),
			permission.IsSystemDefined,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert permission sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert permission: %w", err)
	}

	return nil
}

// GetByID retrieves a permission by its identifier.
func (r *PermissionRepository) GetByID(ctx context.Context, id domain.PermissionID) (*domain.Permission, error) {
	return r.getByColumn(ctx, squirrel.Eq{"id": id.String()})
}

// GetByName retrieves a permission by its normalized name.
func (r *PermissionRepository) GetByName(ctx context.Context, name domain.PermissionName) (*domain.Permission, error) {
	return r.getByColumn(ctx, squirrel.Eq{"normalized_name": name.Normalized()})
}

func (r *PermissionRepository) getByColumn(ctx context.Context, where squirrel.Eq) (*domain.Permission, error) {
	stmt, args, err := r.builder.Select("id", "name", "description", "permission_type", "is_system_defined").
		From("identity.permissions").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permission sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	permission, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return permission, nil
}

// Update modifies an existing permission.
func (r *PermissionRepository) Update(ctx context.Context, permission *domain.Permission) error {
	stmt, args, err := r.builder.Update("identity.permissions").
		Set("description", permission.Description).
		Set("permission_type", string(permission.Type)).
		Where(squirrel.Eq{"id": permission.ID.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update permission sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update permission: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListByRole returns permissions mapped to a role via role_permissions.
func (r *PermissionRepository) ListByRole(ctx context.Context, roleID domain.RoleID) ([]domain.Permission, error) {
	stmt, args, err := r.permissionJoinSelect().
		Where(squirrel.Eq{"rp.role_id": roleID.String()}).
		OrderBy("p.normalized_name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build permissions by role sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions by role: %w", err)
	}
	defer rows.Close()

	return scanPermissionRows(rows)
}

// ListByRoles batch-fetches permissions for all given roles in one query,
// keyed by role ID.
func (r *PermissionRepository) ListByRoles(ctx context.Context, roleIDs []domain.RoleID) (map[domain.RoleID][]domain.Permission, error) {
	result := make(map[domain.RoleID][]domain.Permission, len(roleIDs))
	if len(roleIDs) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		ids = append(ids, roleID.String())
	}

	stmt, args, err := r.builder.Select(
		"rp.role_id",
		"p.id", "p.name", "p.description", "p.permission_type", "p.is_system_defined",
	).
		From("identity.permissions p").
		Join("identity.role_permissions rp ON rp.permission_id = p.id").
		Where(squirrel.Eq{"rp.role_id": ids}).
		OrderBy("p.normalized_name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build permissions by roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions by roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rawRoleID, rawID, name, permType string
			description                      sql.NullString
			isSystemDefined                  bool
		)
		if err := rows.Scan(&rawRoleID, &rawID, &name, &description, &permType, &isSystemDefined); err != nil {
			return nil, fmt.Errorf("scan permission by role: %w", err)
		}

		roleID, err := domain.ParseRoleID(rawRoleID)
		if err != nil {
			return nil, fmt.Errorf("parse role id: %w", err)
		}

		permission, err := buildPermission(rawID, name, description.String, permType, isSystemDefined)
		if err != nil {
			return nil, err
		}

		result[roleID] = append(result[roleID], *permission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions by roles: %w", err)
	}

	return result, nil
}

// ListByUser returns distinct permissions assigned to the user via roles.
func (r *PermissionRepository) ListByUser(ctx context.Context, userID domain.UserAccountID) ([]domain.Permission, error) {
	stmt, args, err := r.builder.Select("DISTINCT p.id", "p.name", "p.description", "p.permission_type", "p.is_system_defined").
		From("identity.permissions p").
		Join("identity.role_permissions rp ON rp.permission_id = p.id").
		Join("identity.user_roles ur ON ur.role_id = rp.role_id").
		Where(squirrel.Eq{"ur.user_id": userID.String()}).
		OrderBy("p.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build permissions by user sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions by user: %w", err)
	}
	defer rows.Close()

	return scanPermissionRows(rows)
}

func (r *PermissionRepository) permissionJoinSelect() squirrel.SelectBuilder {
	return r.builder.Select("p.id", "p.name", "p.description", "p.permission_type", "p.is_system_defined").
		From("identity.permissions p").
		Join("identity.role_permissions rp ON rp.permission_id = p.id")
}

func scanPermission(row pgx.Row) (*domain.Permission, error) {
	var (
		rawID, name, permType string
		description           sql.NullString
		isSystemDefined       bool
	)
	if err := row.Scan(&rawID, &name, &description, &permType, &isSystemDefined); err != nil {
		return nil, err
	}
	return buildPermission(rawID, name, description.String, permType, isSystemDefined)
}

func scanPermissionRows(rows pgx.Rows) ([]domain.Permission, error) {
	permissions := make([]domain.Permission, 0)
	for rows.Next() {
		var (
			rawID, name, permType string
			description           sql.NullString
			isSystemDefined       bool
		)
		if err := rows.Scan(&rawID, &name, &description, &permType, &isSystemDefined); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permission, err := buildPermission(rawID, name, description.String, permType, isSystemDefined)
		if err != nil {
			return nil, err
		}
		permissions = append(permissions, *permission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}

	return permissions, nil
}

func buildPermission(rawID, name, description, permType string, isSystemDefined bool) (*domain.Permission, error) {
	id, err := domain.ParsePermissionID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse permission id: %w", err)
	}

	permissionName, err := domain.NewPermissionName(name)
	if err != nil {
		return nil, fmt.Errorf("parse permission name: %w", err)
	}

	return domain.RehydratePermission(id, permissionName, description, domain.PermissionType(permType), isSystemDefined), nil
}

var _ port.PermissionRepository = (*PermissionRepository)(nil)
