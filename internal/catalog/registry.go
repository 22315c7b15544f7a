package catalog

// Permission codes used across the console. Handlers and capability tables
// reference these constants instead of string literals.
const (
	PermUsersView       = "users.view"
	PermUsersEdit       = "users.edit"
	PermUsersDeactivate = "users.deactivate"

	PermPermissionsView   = "permissions.view"
	PermPermissionsManage = "permissions.manage"

	PermRolesView   = "roles.view"
	PermRolesAssign = "roles.assign"

	PermAuditView   = "audit.view"
	PermAuditExport = "audit.export"

	PermSettingsView = "settings.view"
	PermSettingsEdit = "settings.edit"
)

// Role names mirrored from the rbac package. The catalog keys role defaults
// by plain strings so it stays a leaf package.
const (
	roleUser       = "user"
	roleAdmin      = "admin"
	roleSuperadmin = "superadmin"
)

// Default returns the built-in console catalog.
func Default() *Catalog {
	c, err := New(builtinDefinitions(), builtinRoleDefaults())
	if err != nil {
		// The builtin registry is static; a failure here is a programming error.
		panic(err)
	}
	return c
}

func builtinDefinitions() []Definition {
	return []Definition{
		{
			Category: "User Management",
			Permissions: []Permission{
				{Code: PermUsersView, Description: "View user accounts"},
				{Code: PermUsersEdit, Description: "Create and edit user accounts"},
				{Code: PermUsersDeactivate, Description: "Deactivate user accounts"},
			},
		},
		{
			Category: "Permissions",
			Permissions: []Permission{
				{Code: PermPermissionsView, Description: "View permission assignments"},
				{Code: PermPermissionsManage, Description: "Grant and revoke permissions"},
			},
		},
		{
			Category: "Roles",
			Permissions: []Permission{
				{Code: PermRolesView, Description: "View roles"},
				{Code: PermRolesAssign, Description: "Change user roles"},
			},
		},
		{
			Category: "Audit",
			Permissions: []Permission{
				{Code: PermAuditView, Description: "View the audit log"},
				{Code: PermAuditExport, Description: "Export audit history"},
			},
		},
		{
			Category: "Settings",
			Permissions: []Permission{
				{Code: PermSettingsView, Description: "View console settings"},
				{Code: PermSettingsEdit, Description: "Edit console settings"},
			},
		},
	}
}

// builtinRoleDefaults lists each role's defaults explicitly. Superadmin and
// admin sets happen to be supersets of the tiers below them, but nothing in
// the engine relies on that.
func builtinRoleDefaults() map[string][]string {
	return map[string][]string{
		roleUser: {
			PermSettingsView,
		},
		roleAdmin: {
			PermUsersView,
			PermUsersEdit,
			PermPermissionsView,
			PermRolesView,
			PermAuditView,
			PermSettingsView,
		},
		roleSuperadmin: {
			PermUsersView,
			PermUsersEdit,
			PermUsersDeactivate,
			PermPermissionsView,
			PermPermissionsManage,
			PermRolesView,
			PermRolesAssign,
			PermAuditView,
			PermAuditExport,
			PermSettingsView,
			PermSettingsEdit,
		},
	}
}
