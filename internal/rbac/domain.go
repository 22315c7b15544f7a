package rbac

import "time"

// Actor identifies who performs an operation. Identity is established by the
// session layer and passed explicitly on every call; the engine holds no
// ambient authentication state.
type Actor struct {
	ID   int64
	Role Role
}

// PermissionState is the per-user permission record. It is owned exclusively
// by the mutation engine; every other component treats it as read-only.
// Grants and Revocations are disjoint at all times.
type PermissionState struct {
	UserID      int64
	Role        Role
	Grants      map[string]struct{}
	Revocations map[string]struct{}
	UpdatedAt   time.Time
	UpdatedBy   int64
}

// NewPermissionState creates the implicit initial state for a user: role
// defaults only, empty direct sets.
func NewPermissionState(userID int64, role Role) PermissionState {
	return PermissionState{
		UserID:      userID,
		Role:        role,
		Grants:      make(map[string]struct{}),
		Revocations: make(map[string]struct{}),
	}
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (s PermissionState) Clone() PermissionState {
	out := s
	out.Grants = make(map[string]struct{}, len(s.Grants))
	for code := range s.Grants {
		out.Grants[code] = struct{}{}
	}
	out.Revocations = make(map[string]struct{}, len(s.Revocations))
	for code := range s.Revocations {
		out.Revocations[code] = struct{}{}
	}
	return out
}

// GrantList returns the direct grants as a sorted slice.
func (s PermissionState) GrantList() []string {
	return sortedCodes(s.Grants)
}

// RevocationList returns the direct revocations as a sorted slice.
func (s PermissionState) RevocationList() []string {
	return sortedCodes(s.Revocations)
}
