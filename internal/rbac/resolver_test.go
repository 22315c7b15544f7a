package rbac

import (
	"reflect"
	"testing"

	"github.com/stewardhq/steward/internal/catalog"
)

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	return NewResolver(catalog.Default())
}

func TestEffectivePermissionsFormula(t *testing.T) {
	r := testResolver(t)

	state := NewPermissionState(7, RoleUser)
	state.Grants["audit.view"] = struct{}{}
	state.Revocations["settings.view"] = struct{}{}

	// (role defaults ∪ grants) \ revocations. The user default settings.view
	// is revoked, the extra audit.view is granted.
	got := r.EffectivePermissions(state)
	want := []string{"audit.view"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("effective = %v, want %v", got, want)
	}
}

func TestEffectivePermissionsSorted(t *testing.T) {
	r := testResolver(t)

	state := NewPermissionState(1, RoleAdmin)
	got := r.EffectivePermissions(state)
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Fatalf("effective set not strictly sorted: %v", got)
		}
	}
}

func TestRevocationOfNonDefaultIsNoop(t *testing.T) {
	r := testResolver(t)

	// Revoking a code the user never had changes nothing effective.
	plain := NewPermissionState(2, RoleUser)
	revoked := NewPermissionState(2, RoleUser)
	revoked.Revocations["users.edit"] = struct{}{}

	if !reflect.DeepEqual(r.EffectivePermissions(plain), r.EffectivePermissions(revoked)) {
		t.Fatal("revoking an absent code must not change the effective set")
	}
}

func TestExplainPrecedence(t *testing.T) {
	r := testResolver(t)

	state := NewPermissionState(3, RoleAdmin)
	state.Grants["settings.edit"] = struct{}{}
	state.Revocations["users.edit"] = struct{}{}

	// users.edit is an admin default but revoked; settings.edit is not a
	// default but granted; permissions.manage belongs to superadmin only.
	// Codes normalize to lowercase before lookup.
	cases := []struct {
		code    string
		granted bool
		source  Source
	}{
		{"users.edit", false, SourceDirectRevocation},
		{"settings.edit", true, SourceDirectGrant},
		{"users.view", true, SourceRoleDefault},
		{"permissions.manage", false, SourceAbsent},
		{"USERS.VIEW", true, SourceRoleDefault},
	}
	for _, tc := range cases {
		got := r.Explain(state, tc.code)
		if got.Granted != tc.granted || got.Source != tc.source {
			t.Fatalf("Explain(%q) = %+v, want granted=%v source=%s", tc.code, got, tc.granted, tc.source)
		}
	}
}

func TestHasAnyHasAll(t *testing.T) {
	r := testResolver(t)

	state := NewPermissionState(4, RoleAdmin)
	if !r.HasAny(state, "permissions.manage", "users.view") {
		t.Fatal("HasAny should succeed when one code is effective")
	}
	if r.HasAny(state, "permissions.manage", "roles.assign") {
		t.Fatal("HasAny should fail when no code is effective")
	}
	if !r.HasAll(state, "users.view", "users.edit", "audit.view") {
		t.Fatal("HasAll should succeed when every code is effective")
	}
	if r.HasAll(state, "users.view", "permissions.manage") {
		t.Fatal("HasAll should fail when any code is missing")
	}
	if r.HasAll(state) {
		t.Fatal("HasAll over an empty list must be false")
	}
}

// A demoted admin with an explicit extra grant keeps it; role defaults shrink
// to the new role but direct overrides survive.
func TestDemotionPreservesDirectGrants(t *testing.T) {
	r := testResolver(t)

	state := NewPermissionState(5, RoleAdmin)
	state.Grants["audit.export"] = struct{}{}

	state.Role = RoleUser

	exp := r.Explain(state, "audit.export")
	if !exp.Granted || exp.Source != SourceDirectGrant {
		t.Fatalf("direct grant lost across demotion: %+v", exp)
	}
	if r.HasPermission(state, "users.view") {
		t.Fatal("admin defaults must not survive demotion to user")
	}
}

func TestSuperadminDefaultsCoverCatalog(t *testing.T) {
	r := testResolver(t)

	state := NewPermissionState(6, RoleSuperadmin)
	for _, perm := range catalog.Default().All() {
		if !r.HasPermission(state, perm.Code) {
			t.Fatalf("superadmin missing default %q", perm.Code)
		}
	}
}
