package domain

// EventSchemaVersion tags the published envelope format for all domain events.
const EventSchemaVersion = "1.0"

// Event is an immutable record of a state change, emitted synchronously at
// the point of mutation and dispatched post-commit. Events carry only
// identifiers and the minimal changed fields; consumers must re-query for
// current state and tolerate at-least-once delivery.
type Event interface {
	// EventType returns the stable, versioned event name.
	EventType() string
	// AggregateID returns the identifier of the aggregate that changed.
	AggregateID() string
}

// RoleCreated is emitted when a new role is provisioned.
type RoleCreated struct {
	RoleID          RoleID
	Name            string
	IsSystemDefined bool
}

func (e RoleCreated) EventType() string   { return "identity.role.created" }
func (e RoleCreated) AggregateID() string { return e.RoleID.String() }

// RolePermissionAdded is emitted when a permission is attached to a role.
type RolePermissionAdded struct {
	RoleID       RoleID
	PermissionID PermissionID
}

func (e RolePermissionAdded) EventType() string   { return "identity.role.permission.added" }
func (e RolePermissionAdded) AggregateID() string { return e.RoleID.String() }

// RolePermissionRemoved is emitted when a permission is detached from a role.
type RolePermissionRemoved struct {
	RoleID       RoleID
	PermissionID PermissionID
}

func (e RolePermissionRemoved) EventType() string   { return "identity.role.permission.removed" }
func (e RolePermissionRemoved) AggregateID() string { return e.RoleID.String() }

// PermissionCreated is emitted when a new permission is provisioned.
type PermissionCreated struct {
	PermissionID PermissionID
	Name         PermissionName
	Type         PermissionType
}

func (e PermissionCreated) EventType() string   { return "identity.permission.created" }
func (e PermissionCreated) AggregateID() string { return e.PermissionID.String() }

// PermissionTypeChanged is emitted when a permission's categorical type changes.
type PermissionTypeChanged struct {
	PermissionID PermissionID
	Type         PermissionType
}

func (e PermissionTypeChanged) EventType() string   { return "identity.permission.type.changed" }
func (e PermissionTypeChanged) AggregateID() string { return e.PermissionID.String() }

// PermissionDescriptionChanged is emitted when a permission's description changes.
type PermissionDescriptionChanged struct {
	PermissionID PermissionID
	Description  string
}

func (e PermissionDescriptionChanged) EventType() string {
	return "identity.permission.description.changed"
}
func (e PermissionDescriptionChanged) AggregateID() string { return e.PermissionID.String() }

// UserRoleAdded is emitted when a role is assigned to a user.
type UserRoleAdded struct {
	UserID UserAccountID
	RoleID RoleID
}

func (e UserRoleAdded) EventType() string   { return "identity.user.role.added" }
func (e UserRoleAdded) AggregateID() string { return e.UserID.String() }

// UserRoleRemoved is emitted when a role is revoked from a user.
type UserRoleRemoved struct {
	UserID UserAccountID
	RoleID RoleID
}

func (e UserRoleRemoved) EventType() string   { return "identity.user.role.removed" }
func (e UserRoleRemoved) AggregateID() string { return e.UserID.String() }
