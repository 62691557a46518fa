package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/avalon-platform/identity-service/internal/core/domain"
	"github.com/avalon-platform/identity-service/internal/core/port"
	"github.com/avalon-platform/identity-service/internal/repository"
	"github.com/avalon-platform/identity-service/internal/usecase"
)

// roleAdmin implements the role and permission management half of the
// identity service. Both provider variants keep role/permission
// associations in the local store, so they share this implementation and
// differ only in user lifecycle and authentication ownership.
type roleAdmin struct {
	users       port.UserRepository
	roles       port.RoleRepository
	permissions port.PermissionRepository
	tx          port.Transactor
	resolver    *usecase.ResolverService
	publisher   port.EventPublisher
	logger      *zap.Logger
}

func newRoleAdmin(
	users port.UserRepository,
	roles port.RoleRepository,
	permissions port.PermissionRepository,
	tx port.Transactor,
	resolver *usecase.ResolverService,
	publisher port.EventPublisher,
	logger *zap.Logger,
) *roleAdmin {
	return &roleAdmin{
		users:       users,
		roles:       roles,
		permissions: permissions,
		tx:          tx,
		resolver:    resolver,
		publisher:   publisher,
		logger:      logger,
	}
}

// dispatchEvents publishes aggregate events post-commit. Publish failures
// are logged, never surfaced to the caller: the mutation is already
// durable, and consumers tolerate redelivery on the next change.
func (a *roleAdmin) dispatchEvents(ctx context.Context, events []domain.Event) {
	if len(events) == 0 {
		return
	}
	if err := a.publisher.Publish(ctx, events...); err != nil {
		a.logger.Error("publish domain events", zap.Error(err), zap.Int("count", len(events)))
	}
}

func (a *roleAdmin) AddUserToRole(ctx context.Context, userID domain.UserAccountID, roleName string) error {
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return mapStoreErr(err, "user")
	}

	role, err := a.roles.GetByName(ctx, roleName)
	if err != nil {
		return mapStoreErr(err, fmt.Sprintf("role %q", roleName))
	}

	user.AssignRole(role.ID)

	if _, err := a.users.AssignRole(ctx, user.ID, role.ID); err != nil {
		return mapStoreErr(err, "user role")
	}

	a.dispatchEvents(ctx, user.Events())
	user.ClearEvents()
	return nil
}

// RemoveUserFromRole revokes the named role. Removing a role the user does
// not hold fails with KindNotAssigned; this is deliberate and consistent
// across both providers.
func (a *roleAdmin) RemoveUserFromRole(ctx context.Context, userID domain.UserAccountID, roleName string) error {
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return mapStoreErr(err, "user")
	}

	role, err := a.roles.GetByName(ctx, roleName)
	if err != nil {
		return mapStoreErr(err, fmt.Sprintf("role %q", roleName))
	}

	if err := user.RevokeRole(role.ID); err != nil {
		return err
	}

	if _, err := a.users.RevokeRole(ctx, user.ID, role.ID); err != nil {
		return mapStoreErr(err, "user role")
	}

	a.dispatchEvents(ctx, user.Events())
	user.ClearEvents()
	return nil
}

func (a *roleAdmin) GetUserRoles(ctx context.Context, userID domain.UserAccountID) ([]string, error) {
	if _, err := a.users.GetByID(ctx, userID); err != nil {
		return nil, mapStoreErr(err, "user")
	}

	roles, err := a.roles.ListByUser(ctx, userID)
	if err != nil {
		return nil, mapStoreErr(err, "user roles")
	}

	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names, nil
}

func (a *roleAdmin) GetRoles(ctx context.Context) ([]port.RoleView, error) {
	roles, err := a.roles.List(ctx)
	if err != nil {
		return nil, mapStoreErr(err, "roles")
	}

	roleIDs := make([]domain.RoleID, 0, len(roles))
	for _, role := range roles {
		roleIDs = append(roleIDs, role.ID)
	}

	permissionsByRole, err := a.permissions.ListByRoles(ctx, roleIDs)
	if err != nil {
		return nil, mapStoreErr(err, "role permissions")
	}

	views := make([]port.RoleView, 0, len(roles))
	for _, role := range roles {
		views = append(views, roleView(role, permissionsByRole[role.ID]))
	}
	return views, nil
}

func (a *roleAdmin) CreateRole(ctx context.Context, input port.RoleInput) (domain.RoleID, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return domain.RoleID{}, domain.Validationf("role name is required")
	}

	if existing, err := a.roles.GetByName(ctx, name); err == nil && existing != nil {
		return domain.RoleID{}, domain.NewError(domain.KindAlreadyExists, fmt.Sprintf("role %q already exists", name))
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return domain.RoleID{}, mapStoreErr(err, "role")
	}

	role, err := domain.NewRole(name, input.Description, false)
	if err != nil {
		return domain.RoleID{}, err
	}

	// Role, provisioned permissions, and attachments commit together;
	// events go out only after the transaction is durable.
	var permissionEvents []domain.Event
	err = a.tx.WithinTx(ctx, func(repos port.RepositorySet) error {
		permissionIDs, events, err := a.ensurePermissions(ctx, repos.Permissions, role, input.PermissionNames)
		if err != nil {
			return err
		}

		if err := repos.Roles.Create(ctx, role); err != nil {
			return mapStoreErr(err, "role")
		}

		if _, err := repos.Roles.AttachPermissions(ctx, role.ID, permissionIDs); err != nil {
			return mapStoreErr(err, "role permissions")
		}

		permissionEvents = events
		return nil
	})
	if err != nil {
		return domain.RoleID{}, err
	}

	a.dispatchEvents(ctx, append(permissionEvents, role.Events()...))
	role.ClearEvents()
	return role.ID, nil
}

// ensurePermissions resolves the named permissions, creating any that do
// not exist yet, and attaches them to the aggregate. Events from created
// permissions are returned for dispatch after the enclosing transaction
// commits.
func (a *roleAdmin) ensurePermissions(ctx context.Context, permissions port.PermissionRepository, role *domain.Role, names []string) ([]domain.PermissionID, []domain.Event, error) {
	seen := make(map[string]struct{}, len(names))
	ids := make([]domain.PermissionID, 0, len(names))
	events := make([]domain.Event, 0)

	for _, raw := range names {
		name, err := domain.NewPermissionName(raw)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := seen[name.Normalized()]; dup {
			continue
		}
		seen[name.Normalized()] = struct{}{}

		permission, err := permissions.GetByName(ctx, name)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return nil, nil, mapStoreErr(err, fmt.Sprintf("permission %q", raw))
			}

			permission, err = domain.NewPermission(name, "", inferPermissionType(name), false)
			if err != nil {
				return nil, nil, err
			}
			if err := permissions.Create(ctx, permission); err != nil {
				return nil, nil, mapStoreErr(err, fmt.Sprintf("permission %q", raw))
			}
			events = append(events, permission.Events()...)
			permission.ClearEvents()
		}

		role.AddPermission(permission.ID)
		ids = append(ids, permission.ID)
	}

	return ids, events, nil
}

func (a *roleAdmin) UpdateRole(ctx context.Context, roleID domain.RoleID, input port.RoleInput) error {
	role, err := a.roles.GetByID(ctx, roleID)
	if err != nil {
		return mapStoreErr(err, "role")
	}

	if name := strings.TrimSpace(input.Name); name != "" && name != role.Name {
		if existing, err := a.roles.GetByName(ctx, name); err == nil && existing != nil && existing.ID != role.ID {
			return domain.NewError(domain.KindAlreadyExists, fmt.Sprintf("role %q already exists", name))
		} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return mapStoreErr(err, "role")
		}
		if err := role.Rename(name); err != nil {
			return err
		}
	}
	role.ChangeDescription(input.Description)

	// Permission reconciliation and the role row update are one atomic
	// change; a failed detach or attach leaves nothing half-applied.
	var permissionEvents []domain.Event
	err = a.tx.WithinTx(ctx, func(repos port.RepositorySet) error {
		if input.PermissionNames != nil {
			events, err := a.reconcilePermissions(ctx, repos, role, input.PermissionNames)
			if err != nil {
				return err
			}
			permissionEvents = events
		}

		if err := repos.Roles.Update(ctx, role); err != nil {
			return mapStoreErr(err, "role")
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.dispatchEvents(ctx, append(permissionEvents, role.Events()...))
	role.ClearEvents()
	return nil
}

// reconcilePermissions diffs the desired permission names against the
// aggregate's current set, attaching and detaching through the aggregate so
// its invariants hold. It runs inside the caller's transaction and returns
// the events of any permissions it provisioned.
func (a *roleAdmin) reconcilePermissions(ctx context.Context, repos port.RepositorySet, role *domain.Role, names []string) ([]domain.Event, error) {
	current, err := repos.Permissions.ListByRole(ctx, role.ID)
	if err != nil {
		return nil, mapStoreErr(err, "role permissions")
	}

	desired := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name, err := domain.NewPermissionName(raw)
		if err != nil {
			return nil, err
		}
		desired[name.Normalized()] = struct{}{}
	}

	toDetach := make([]domain.PermissionID, 0)
	for _, permission := range current {
		if _, keep := desired[permission.Name.Normalized()]; keep {
			delete(desired, permission.Name.Normalized())
			continue
		}
		if err := role.RemovePermission(permission.ID); err != nil {
			return nil, err
		}
		toDetach = append(toDetach, permission.ID)
	}

	remaining := make([]string, 0, len(desired))
	for name := range desired {
		remaining = append(remaining, name)
	}
	toAttach, events, err := a.ensurePermissions(ctx, repos.Permissions, role, remaining)
	if err != nil {
		return nil, err
	}

	if _, err := repos.Roles.DetachPermissions(ctx, role.ID, toDetach); err != nil {
		return nil, mapStoreErr(err, "role permissions")
	}
	if _, err := repos.Roles.AttachPermissions(ctx, role.ID, toAttach); err != nil {
		return nil, mapStoreErr(err, "role permissions")
	}

	return events, nil
}

func (a *roleAdmin) DeleteRole(ctx context.Context, roleID domain.RoleID) error {
	role, err := a.roles.GetByID(ctx, roleID)
	if err != nil {
		return mapStoreErr(err, "role")
	}

	if err := role.EnsureDeletable(); err != nil {
		return err
	}

	if err := a.roles.Delete(ctx, roleID); err != nil {
		return mapStoreErr(err, "role")
	}

	return nil
}

func (a *roleAdmin) GetPermissionsForRole(ctx context.Context, roleName string) ([]string, error) {
	role, err := a.roles.GetByName(ctx, roleName)
	if err != nil {
		return nil, mapStoreErr(err, fmt.Sprintf("role %q", roleName))
	}

	permissions, err := a.permissions.ListByRole(ctx, role.ID)
	if err != nil {
		return nil, mapStoreErr(err, "role permissions")
	}

	names := make([]string, 0, len(permissions))
	for _, permission := range permissions {
		names = append(names, permission.Name.String())
	}
	return names, nil
}

func (a *roleAdmin) GetEffectivePermissions(ctx context.Context, userID domain.UserAccountID) ([]string, error) {
	resolved, err := a.resolver.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, mapStoreErr(err, "effective permissions")
	}

	names := make([]string, 0, len(resolved))
	for _, name := range resolved {
		names = append(names, name.String())
	}
	return names, nil
}

func roleView(role *domain.Role, permissions []domain.Permission) port.RoleView {
	names := make([]string, 0, len(permissions))
	for _, permission := range permissions {
		names = append(names, permission.Name.String())
	}
	return port.RoleView{
		ID:              role.ID,
		Name:            role.Name,
		Description:     role.Description,
		IsSystemDefined: role.IsSystemDefined,
		PermissionNames: names,
	}
}

// inferPermissionType derives the categorical type from the final segment
// of a dotted or colon-separated permission name, defaulting to Execute.
func inferPermissionType(name domain.PermissionName) domain.PermissionType {
	normalized := name.Normalized()
	segment := normalized
	if idx := strings.LastIndexAny(normalized, ".:"); idx >= 0 && idx < len(normalized)-1 {
		segment = normalized[idx+1:]
	}

	switch segment {
	case "create", "add", "new":
		return domain.PermissionTypeCreate
	case "read", "view", "list", "get":
		return domain.PermissionTypeRead
	case "update", "edit", "modify":
		return domain.PermissionTypeUpdate
	case "delete", "remove":
		return domain.PermissionTypeDelete
	case "admin", "manage", "system":
		return domain.PermissionTypeSystem
	default:
		return domain.PermissionTypeExecute
	}
}
