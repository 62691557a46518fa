package domain

import "testing"

func TestPermissionNameNormalization(t *testing.T) {
	name, err := NewPermissionName("  Orders.Read ")
	if err != nil {
		t.Fatalf("NewPermissionName returned error: %v", err)
	}
	if name.String() != "Orders.Read" {
		t.Fatalf("expected original casing preserved, got %q", name.String())
	}
	if name.Normalized() != "orders.read" {
		t.Fatalf("expected normalized form, got %q", name.Normalized())
	}

	other, _ := NewPermissionName("ORDERS.READ")
	if !name.Equals(other) {
		t.Fatal("comparison must be case-insensitive")
	}

	if _, err := NewPermissionName("   "); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
}

func TestParsePermissionType(t *testing.T) {
	for _, raw := range []string{"Create", "Read", "Update", "Delete", "Execute", "System"} {
		if _, err := ParsePermissionType(raw); err != nil {
			t.Errorf("ParsePermissionType(%q) returned error: %v", raw, err)
		}
	}
	if _, err := ParsePermissionType("Browse"); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
}

func TestPermissionChangeEmitsEventsOnlyOnChange(t *testing.T) {
	name, _ := NewPermissionName("orders.read")
	permission, err := NewPermission(name, "read orders", PermissionTypeRead, false)
	if err != nil {
		t.Fatalf("NewPermission returned error: %v", err)
	}

	events := permission.Events()
	if len(events) != 1 {
		t.Fatalf("expected creation event, got %d events", len(events))
	}
	if _, ok := events[0].(PermissionCreated); !ok {
		t.Fatalf("expected PermissionCreated, got %T", events[0])
	}
	permission.ClearEvents()

	permission.ChangeType(PermissionTypeRead)
	permission.ChangeDescription("read orders")
	if len(permission.Events()) != 0 {
		t.Fatal("unchanged values must not emit events")
	}

	permission.ChangeType(PermissionTypeUpdate)
	permission.ChangeDescription("mutate orders")
	events = permission.Events()
	if len(events) != 2 {
		t.Fatalf("expected two change events, got %d", len(events))
	}
	if _, ok := events[0].(PermissionTypeChanged); !ok {
		t.Fatalf("expected PermissionTypeChanged, got %T", events[0])
	}
	if _, ok := events[1].(PermissionDescriptionChanged); !ok {
		t.Fatalf("expected PermissionDescriptionChanged, got %T", events[1])
	}
}

func TestRoleNameNormalization(t *testing.T) {
	role, err := NewRole("  Admins ", "manage things", false)
	if err != nil {
		t.Fatalf("NewRole returned error: %v", err)
	}
	if role.Name != "Admins" {
		t.Fatalf("expected trimmed name, got %q", role.Name)
	}
	if role.NormalizedName != "ADMINS" {
		t.Fatalf("expected upper-invariant normalized name, got %q", role.NormalizedName)
	}

	if err := role.Rename("Operators"); err != nil {
		t.Fatalf("Rename returned error: %v", err)
	}
	if role.NormalizedName != "OPERATORS" {
		t.Fatalf("rename must re-derive normalized name, got %q", role.NormalizedName)
	}
}

func TestRolePermissionSetInvariants(t *testing.T) {
	role, _ := NewRole("Operators", "", false)
	role.ClearEvents()
	permID := NewPermissionID()

	role.AddPermission(permID)
	role.AddPermission(permID)
	if len(role.PermissionIDs()) != 1 {
		t.Fatalf("duplicate add must be a no-op, got %d permissions", len(role.PermissionIDs()))
	}
	if len(role.Events()) != 1 {
		t.Fatalf("expected one event for duplicate add, got %d", len(role.Events()))
	}

	if err := role.RemovePermission(NewPermissionID()); !IsKind(err, KindNotAssigned) {
		t.Fatalf("expected not-assigned error, got %v", err)
	}

	if err := role.RemovePermission(permID); err != nil {
		t.Fatalf("RemovePermission returned error: %v", err)
	}
	if role.HasPermission(permID) {
		t.Fatal("permission still present after removal")
	}
}

func TestSystemRoleRetainsLastPermission(t *testing.T) {
	role, _ := NewRole("Administrator", "", true)
	permID := NewPermissionID()
	role.AddPermission(permID)

	err := role.RemovePermission(permID)
	if !IsKind(err, KindConflict) {
		t.Fatalf("expected conflict removing last permission of system role, got %v", err)
	}
	if !role.HasPermission(permID) {
		t.Fatal("failed removal must leave the permission attached")
	}

	if err := role.EnsureDeletable(); !IsKind(err, KindConflict) {
		t.Fatalf("system roles must not be deletable, got %v", err)
	}

	ordinary, _ := NewRole("Operators", "", false)
	if err := ordinary.EnsureDeletable(); err != nil {
		t.Fatalf("ordinary role must be deletable, got %v", err)
	}
}
