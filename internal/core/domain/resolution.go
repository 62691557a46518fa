package domain

import "sort"

// EffectivePermissions computes the effective permission set for a user as
// the union of permission names reachable through the given roles,
// deduplicated by normalized name. The function is deterministic and
// side-effect free: the result is sorted by normalized name and the input
// maps are never mutated.
//
// Role assignments are taken as ground truth; resolution never triggers
// directory synchronization.
func EffectivePermissions(roles []*Role, permissionsByRole map[RoleID][]Permission) []PermissionName {
	seen := make(map[string]PermissionName)
	for _, role := range roles {
		if role == nil {
			continue
		}
		for _, permission := range permissionsByRole[role.ID] {
			key := permission.Name.Normalized()
			if _, ok := seen[key]; !ok {
				seen[key] = permission.Name
			}
		}
	}

	names := make([]PermissionName, 0, len(seen))
	for _, name := range seen {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return names[i].Normalized() < names[j].Normalized()
	})
	return names
}

// ContainsPermission reports whether the resolved set contains the named
// permission, compared case-insensitively.
func ContainsPermission(resolved []PermissionName, name string) bool {
	candidate, err := NewPermissionName(name)
	if err != nil {
		return false
	}
	for _, p := range resolved {
		if p.Equals(candidate) {
			return true
		}
	}
	return false
}
