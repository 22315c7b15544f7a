package rbac

import "github.com/stewardhq/steward/internal/catalog"

// Capability names a console feature gate. Each capability maps to the
// permission codes it requires, defined once here instead of ad hoc boolean
// helpers scattered through handlers.
type Capability string

const (
	CapViewUsers         Capability = "view_users"
	CapManageUsers       Capability = "manage_users"
	CapDeactivateUsers   Capability = "deactivate_users"
	CapViewPermissions   Capability = "view_permissions"
	CapManagePermissions Capability = "manage_permissions"
	CapAssignRoles       Capability = "assign_roles"
	CapViewAudit         Capability = "view_audit"
	CapExportAudit       Capability = "export_audit"
)

// capabilityCodes is the tagged capability table. All codes listed for a
// capability must be effective for the capability to hold.
var capabilityCodes = map[Capability][]string{
	CapViewUsers:         {catalog.PermUsersView},
	CapManageUsers:       {catalog.PermUsersView, catalog.PermUsersEdit},
	CapDeactivateUsers:   {catalog.PermUsersView, catalog.PermUsersDeactivate},
	CapViewPermissions:   {catalog.PermPermissionsView},
	CapManagePermissions: {catalog.PermPermissionsManage},
	CapAssignRoles:       {catalog.PermRolesAssign},
	CapViewAudit:         {catalog.PermAuditView},
	CapExportAudit:       {catalog.PermAuditView, catalog.PermAuditExport},
}

// Codes returns the permission codes backing a capability.
func (c Capability) Codes() []string {
	codes := capabilityCodes[c]
	out := make([]string, len(codes))
	copy(out, codes)
	return out
}

// Can reports whether the capability's full code set is effective for state.
func (r *Resolver) Can(state PermissionState, cap Capability) bool {
	codes, ok := capabilityCodes[cap]
	if !ok {
		return false
	}
	return r.HasAll(state, codes...)
}
