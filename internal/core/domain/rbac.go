package domain

import (
	"strings"

	uuid "github.com/google/uuid"
)

// RoleID identifies a domain role.
type RoleID struct{ id uuid.UUID }

// NewRoleID allocates a fresh role identifier.
func NewRoleID() RoleID { return RoleID{id: uuid.New()} }

// ParseRoleID parses the string form of a role identifier.
func ParseRoleID(raw string) (RoleID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return RoleID{}, Validationf("invalid role id %q", raw)
	}
	return RoleID{id: id}, nil
}

func (r RoleID) String() string { return r.id.String() }
func (r RoleID) IsZero() bool   { return r.id == uuid.Nil }

// PermissionID identifies a permission.
type PermissionID struct{ id uuid.UUID }

// NewPermissionID allocates a fresh permission identifier.
func NewPermissionID() PermissionID { return PermissionID{id: uuid.New()} }

// ParsePermissionID parses the string form of a permission identifier.
func ParsePermissionID(raw string) (PermissionID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return PermissionID{}, Validationf("invalid permission id %q", raw)
	}
	return PermissionID{id: id}, nil
}

func (p PermissionID) String() string { return p.id.String() }
func (p PermissionID) IsZero() bool   { return p.id == uuid.Nil }

// PermissionName is the external handle for a permission. Comparison and
// lookup are case-insensitive.
type PermissionName struct{ value string }

// NewPermissionName validates and wraps a permission name.
func NewPermissionName(raw string) (PermissionName, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PermissionName{}, Validationf("permission name is required")
	}
	return PermissionName{value: trimmed}, nil
}

func (p PermissionName) String() string     { return p.value }
func (p PermissionName) Normalized() string { return strings.ToLower(p.value) }
func (p PermissionName) IsZero() bool       { return p.value == "" }

// Equals compares permission names case-insensitively.
func (p PermissionName) Equals(o PermissionName) bool {
	return p.Normalized() == o.Normalized()
}

// PermissionType categorizes a permission.
type PermissionType string

const (
	PermissionTypeCreate  PermissionType = "Create"
	PermissionTypeRead    PermissionType = "Read"
	PermissionTypeUpdate  PermissionType = "Update"
	PermissionTypeDelete  PermissionType = "Delete"
	PermissionTypeExecute PermissionType = "Execute"
	PermissionTypeSystem  PermissionType = "System"
)

// ParsePermissionType validates a categorical permission type.
func ParsePermissionType(raw string) (PermissionType, error) {
	switch PermissionType(raw) {
	case PermissionTypeCreate, PermissionTypeRead, PermissionTypeUpdate,
		PermissionTypeDelete, PermissionTypeExecute, PermissionTypeSystem:
		return PermissionType(raw), nil
	}
	return "", Validationf("invalid permission type %q", raw)
}

// Permission is a named, fine-grained authorization unit.
type Permission struct {
	ID              PermissionID
	Name            PermissionName
	Description     string
	Type            PermissionType
	IsSystemDefined bool

	events []Event
}

// NewPermission creates a permission entity and records its creation event.
func NewPermission(name PermissionName, description string, permType PermissionType, systemDefined bool) (*Permission, error) {
	if name.IsZero() {
		return nil, Validationf("permission name is required")
	}
	p := &Permission{
		ID:              NewPermissionID(),
		Name:            name,
		Description:     strings.TrimSpace(description),
		Type:            permType,
		IsSystemDefined: systemDefined,
	}
	p.record(PermissionCreated{PermissionID: p.ID, Name: p.Name, Type: p.Type})
	return p, nil
}

// RehydratePermission rebuilds a permission from persisted state without events.
func RehydratePermission(id PermissionID, name PermissionName, description string, permType PermissionType, systemDefined bool) *Permission {
	return &Permission{ID: id, Name: name, Description: description, Type: permType, IsSystemDefined: systemDefined}
}

// ChangeType updates the categorical type; unchanged values emit no event.
func (p *Permission) ChangeType(permType PermissionType) {
	if p.Type == permType {
		return
	}
	p.Type = permType
	p.record(PermissionTypeChanged{PermissionID: p.ID, Type: permType})
}

// ChangeDescription updates the description; unchanged values emit no event.
func (p *Permission) ChangeDescription(description string) {
	description = strings.TrimSpace(description)
	if p.Description == description {
		return
	}
	p.Description = description
	p.record(PermissionDescriptionChanged{PermissionID: p.ID, Description: description})
}

// Events returns pending domain events in mutation order.
func (p *Permission) Events() []Event { return p.events }

// ClearEvents drops pending events after they have been dispatched.
func (p *Permission) ClearEvents() { p.events = nil }

func (p *Permission) record(e Event) { p.events = append(p.events, e) }

// Role is the aggregate root for a named bundle of permissions. Its
// permission set is mutated only through AddPermission/RemovePermission.
type Role struct {
	ID              RoleID
	Name            string
	NormalizedName  string
	Description     string
	IsSystemDefined bool

	permissionIDs map[PermissionID]struct{}
	events        []Event
}

// NormalizeRoleName produces the upper-invariant lookup form of a role name.
func NormalizeRoleName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// NewRole creates a role aggregate and records its creation event.
func NewRole(name, description string, systemDefined bool) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Validationf("role name is required")
	}
	r := &Role{
		ID:              NewRoleID(),
		Name:            name,
		NormalizedName:  NormalizeRoleName(name),
		Description:     strings.TrimSpace(description),
		IsSystemDefined: systemDefined,
		permissionIDs:   make(map[PermissionID]struct{}),
	}
	r.record(RoleCreated{RoleID: r.ID, Name: r.Name, IsSystemDefined: r.IsSystemDefined})
	return r, nil
}

// RehydrateRole rebuilds a role from persisted state without events.
func RehydrateRole(id RoleID, name, description string, systemDefined bool, permissionIDs []PermissionID) *Role {
	set := make(map[PermissionID]struct{}, len(permissionIDs))
	for _, pid := range permissionIDs {
		set[pid] = struct{}{}
	}
	return &Role{
		ID:              id,
		Name:            name,
		NormalizedName:  NormalizeRoleName(name),
		Description:     description,
		IsSystemDefined: systemDefined,
		permissionIDs:   set,
	}
}

// PermissionIDs returns the attached permission identifiers.
func (r *Role) PermissionIDs() []PermissionID {
	ids := make([]PermissionID, 0, len(r.permissionIDs))
	for pid := range r.permissionIDs {
		ids = append(ids, pid)
	}
	return ids
}

// HasPermission reports whether the permission is attached to the role.
func (r *Role) HasPermission(permissionID PermissionID) bool {
	_, ok := r.permissionIDs[permissionID]
	return ok
}

// Rename changes the role name, re-deriving the normalized form. The caller
// is responsible for uniqueness of the normalized name in the store.
func (r *Role) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return Validationf("role name is required")
	}
	r.Name = name
	r.NormalizedName = NormalizeRoleName(name)
	return nil
}

// ChangeDescription updates the role description.
func (r *Role) ChangeDescription(description string) {
	r.Description = strings.TrimSpace(description)
}

// AddPermission attaches a permission to the role. Adding a permission the
// role already holds is a no-op and emits no event.
func (r *Role) AddPermission(permissionID PermissionID) {
	if _, ok := r.permissionIDs[permissionID]; ok {
		return
	}
	r.permissionIDs[permissionID] = struct{}{}
	r.record(RolePermissionAdded{RoleID: r.ID, PermissionID: permissionID})
}

// RemovePermission detaches a permission from the role. Removing a
// permission the role never held fails with a not-assigned error. A
// system-defined role cannot have its last permission removed.
func (r *Role) RemovePermission(permissionID PermissionID) error {
	if _, ok := r.permissionIDs[permissionID]; !ok {
		return NewError(KindNotAssigned, "permission not assigned to role")
	}
	if r.IsSystemDefined && len(r.permissionIDs) == 1 {
		return Conflictf("system role %q must retain at least one permission", r.Name)
	}
	delete(r.permissionIDs, permissionID)
	r.record(RolePermissionRemoved{RoleID: r.ID, PermissionID: permissionID})
	return nil
}

// EnsureDeletable verifies the role may be deleted. System-defined roles
// are reserved for bootstrap (for example Administrator) and never deleted
// through ordinary mutation paths.
func (r *Role) EnsureDeletable() error {
	if r.IsSystemDefined {
		return Conflictf("system role %q cannot be deleted", r.Name)
	}
	return nil
}

// Events returns pending domain events in mutation order.
func (r *Role) Events() []Event { return r.events }

// ClearEvents drops pending events after they have been dispatched.
func (r *Role) ClearEvents() { r.events = nil }

func (r *Role) record(e Event) { r.events = append(r.events, e) }

// UserRole links a user with a role. Rows are created and destroyed only
// through the UserAccount aggregate's role assignment operations.
type UserRole struct {
	UserID UserAccountID
	RoleID RoleID
}

// RolePermission links a role with a permission. Rows are created and
// destroyed only through the Role aggregate's permission operations.
type RolePermission struct {
	RoleID       RoleID
	PermissionID PermissionID
}
