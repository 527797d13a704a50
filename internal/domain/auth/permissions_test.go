package auth

import (
	"context"
	"testing"
)

func TestRolePermissionsSubset(t *testing.T) {
	allowed := map[string]struct{}{}
	for _, perm := range DefaultPermissions {
		allowed[perm] = struct{}{}
	}

	for role, perms := range RolePermissions {
		if len(perms) == 0 {
			t.Fatalf("role %s has no permissions", role)
		}
		for _, perm := range perms {
			if _, ok := allowed[perm]; !ok {
				t.Fatalf("role %s has unknown permission %s", role, perm)
			}
		}
	}
}

func TestDefaultPermissionsUnique(t *testing.T) {
	seen := map[string]struct{}{}
	for _, perm := range DefaultPermissions {
		if _, ok := seen[perm]; ok {
			t.Fatalf("duplicate permission %s", perm)
		}
		seen[perm] = struct{}{}
	}
}

func TestEveryRoleHasPermissions(t *testing.T) {
	for _, role := range Roles {
		if _, ok := RolePermissions[role]; !ok {
			t.Fatalf("role %s missing from RolePermissions", role)
		}
	}
}

func TestStaticPermissionsCreateIsManagerial(t *testing.T) {
	perms := StaticPermissions{}
	for _, role := range Roles {
		allowed, err := perms.HasPermission(context.Background(), string(role), PermAppraisalCreate)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if allowed != role.Managerial() {
			t.Fatalf("role %s create permission = %v, want %v", role, allowed, role.Managerial())
		}
	}
}
