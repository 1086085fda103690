package auth

const (
	RoleSuperAdmin = "SuperAdmin"
	RoleAdmin      = "Admin"
	RoleOperator   = "Operator"
	RoleViewer     = "Viewer"
)

const (
	PermStaffRead       = "staff.read"
	PermStaffWrite      = "staff.write"
	PermStaffExit       = "staff.exit"
	PermStaffReturn     = "staff.return"
	PermStaffReconcile  = "staff.reconcile"
	PermSensitiveUnlock = "staff.sensitive.unlock"
	PermAuditRead       = "audit.read"
)

var DefaultPermissions = []string{
	PermStaffRead,
	PermStaffWrite,
	PermStaffExit,
	PermStaffReturn,
	PermStaffReconcile,
	PermSensitiveUnlock,
	PermAuditRead,
}

var RolePermissions = map[string][]string{
	RoleViewer: {
		PermStaffRead,
	},
	RoleOperator: {
		PermStaffRead,
		PermStaffWrite,
	},
	RoleAdmin: {
		PermStaffRead,
		PermStaffWrite,
		PermStaffExit,
		PermStaffReturn,
		PermAuditRead,
	},
	RoleSuperAdmin: {
		PermStaffRead,
		PermStaffWrite,
		PermStaffExit,
		PermStaffReturn,
		PermStaffReconcile,
		PermSensitiveUnlock,
		PermAuditRead,
	},
}

// HasPermission reports whether role grants permission. Unknown roles grant nothing.
func HasPermission(role, permission string) bool {
	for _, perm := range RolePermissions[role] {
		if perm == permission {
			return true
		}
	}
	return false
}

func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}
