package port

import "context"

// DirectoryUser is the external directory's native user record, reduced to
// the fields the mirror needs.
type DirectoryUser struct {
	ObjectID string
	Username string
	Email    string
}

// DirectoryClient talks to the external identity directory. Tenant/client
// wiring and group synchronization schedules live outside the core; the
// provider only needs point lookups.
type DirectoryClient interface {
	GetUserByObjectID(ctx context.Context, objectID string) (*DirectoryUser, error)
	GetUserByUsername(ctx context.Context, username string) (*DirectoryUser, error)
	GetUserByEmail(ctx context.Context, email string) (*DirectoryUser, error)
	// ListGroupNames returns the directory group memberships for the user,
	// filtered by the configured group prefix.
	ListGroupNames(ctx context.Context, objectID string) ([]string, error)
}

// RolePermissionCache caches role and permission association lookups for
// the read-through directory provider.
type RolePermissionCache interface {
	GetRoles(ctx context.Context, userID string) ([]string, bool, error)
	SetRoles(ctx context.Context, userID string, roles []string) error
	GetPermissions(ctx context.Context, userID string) ([]string, bool, error)
	SetPermissions(ctx context.Context, userID string, permissions []string) error
	Invalidate(ctx context.Context, userID string) error
}
