package auth

import "testing"

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

func TestOnlySuperAdminUnlocksSensitiveFields(t *testing.T) {
	for role := range RolePermissions {
		got := HasPermission(role, PermSensitiveUnlock)
		if got != (role == RoleSuperAdmin) {
			t.Fatalf("role %s unlock = %v", role, got)
		}
	}
}

func TestActorFromUserContext(t *testing.T) {
	actor := UserContext{UserID: "u1", Email: "ops@example.com", RoleName: RoleAdmin}.Actor()
	if actor.DisplayName != "ops@example.com" {
		t.Fatalf("expected email fallback for display name, got %q", actor.DisplayName)
	}
	if !actor.Can(PermStaffExit) || actor.Can(PermSensitiveUnlock) {
		t.Fatalf("unexpected permissions: %v", actor.Permissions)
	}
	if (UserContext{UserID: "u2", RoleName: "Ghost"}).Actor().Can(PermStaffRead) {
		t.Fatal("unknown role must grant nothing")
	}
}
