package rbac

import "sort"

// CatalogPort is the slice of the permission catalog the resolver needs.
type CatalogPort interface {
	Has(code string) bool
	DefaultsForRole(role string) []string
}

// Source names the layer that produced a permission decision.
type Source string

const (
	SourceRoleDefault      Source = "role_default"
	SourceDirectGrant      Source = "direct_grant"
	SourceDirectRevocation Source = "direct_revocation"
	SourceAbsent           Source = "absent"
)

// Explanation is the diagnostic result of Explain, used by audit views.
type Explanation struct {
	Granted bool   `json:"granted"`
	Source  Source `json:"source"`
}

// Resolver computes effective permissions from role defaults plus direct
// overrides. It is a pure function of the state passed in; nothing hidden
// affects resolution.
type Resolver struct {
	catalog CatalogPort
}

// NewResolver wires a Resolver against a catalog.
func NewResolver(catalog CatalogPort) *Resolver {
	return &Resolver{catalog: catalog}
}

// EffectivePermissions returns (roleDefaults ∪ grants) \ revocations, sorted.
func (r *Resolver) EffectivePermissions(state PermissionState) []string {
	effective := make(map[string]struct{})
	for _, code := range r.catalog.DefaultsForRole(string(state.Role)) {
		effective[code] = struct{}{}
	}
	for code := range state.Grants {
		effective[code] = struct{}{}
	}
	for code := range state.Revocations {
		delete(effective, code)
	}
	return sortedCodes(effective)
}

// HasPermission reports whether code is in the user's effective set.
func (r *Resolver) HasPermission(state PermissionState, code string) bool {
	return r.Explain(state, code).Granted
}

// HasAny reports whether at least one of codes is effective. Short-circuits.
func (r *Resolver) HasAny(state PermissionState, codes ...string) bool {
	for _, code := range codes {
		if r.HasPermission(state, code) {
			return true
		}
	}
	return false
}

// HasAll reports whether every one of codes is effective. Short-circuits.
func (r *Resolver) HasAll(state PermissionState, codes ...string) bool {
	for _, code := range codes {
		if !r.HasPermission(state, code) {
			return false
		}
	}
	return len(codes) > 0
}

// Explain resolves which layer decides a permission. Precedence: direct
// revocation over direct grant over role default. Grants and revocations are
// disjoint by invariant, so the ordering only matters for audit transparency.
func (r *Resolver) Explain(state PermissionState, code string) Explanation {
	code = normalizeCode(code)
	if _, ok := state.Revocations[code]; ok {
		return Explanation{Granted: false, Source: SourceDirectRevocation}
	}
	if _, ok := state.Grants[code]; ok {
		return Explanation{Granted: true, Source: SourceDirectGrant}
	}
	for _, def := range r.catalog.DefaultsForRole(string(state.Role)) {
		if def == code {
			return Explanation{Granted: true, Source: SourceRoleDefault}
		}
	}
	return Explanation{Granted: false, Source: SourceAbsent}
}

func sortedCodes(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
