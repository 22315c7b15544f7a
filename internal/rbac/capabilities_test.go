package rbac

import (
	"testing"

	"github.com/stewardhq/steward/internal/catalog"
)

func TestCapabilitiesByRole(t *testing.T) {
	r := testResolver(t)

	admin := NewPermissionState(1, RoleAdmin)
	user := NewPermissionState(2, RoleUser)
	super := NewPermissionState(3, RoleSuperadmin)

	cases := []struct {
		name  string
		state PermissionState
		cap   Capability
		want  bool
	}{
		{"admin views users", admin, CapViewUsers, true},
		{"admin manages users", admin, CapManageUsers, true},
		{"admin cannot deactivate", admin, CapDeactivateUsers, false},
		{"admin cannot manage permissions", admin, CapManagePermissions, false},
		{"user views nothing administrative", user, CapViewUsers, false},
		{"superadmin assigns roles", super, CapAssignRoles, true},
		{"superadmin exports audit", super, CapExportAudit, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Can(tc.state, tc.cap); got != tc.want {
				t.Fatalf("Can(%s) = %v, want %v", tc.cap, got, tc.want)
			}
		})
	}
}

func TestCapabilityRequiresFullCodeSet(t *testing.T) {
	r := testResolver(t)

	// Deactivation needs both users.view and users.deactivate; granting only
	// the latter is not enough.
	state := NewPermissionState(4, RoleUser)
	state.Grants[catalog.PermUsersDeactivate] = struct{}{}
	if r.Can(state, CapDeactivateUsers) {
		t.Fatal("capability must not hold on a partial code set")
	}

	state.Grants[catalog.PermUsersView] = struct{}{}
	if !r.Can(state, CapDeactivateUsers) {
		t.Fatal("capability should hold once every code is granted")
	}
}

func TestUnknownCapability(t *testing.T) {
	r := testResolver(t)
	if r.Can(NewPermissionState(5, RoleSuperadmin), Capability("launch_rockets")) {
		t.Fatal("unknown capability must never hold")
	}
}

func TestCodesReturnsCopy(t *testing.T) {
	codes := CapManageUsers.Codes()
	if len(codes) == 0 {
		t.Fatal("expected codes")
	}
	codes[0] = "tampered"
	if CapManageUsers.Codes()[0] == "tampered" {
		t.Fatal("Codes must not expose the backing table")
	}
}
