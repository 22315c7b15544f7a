package rbac

import "errors"

var (
	// ErrForbidden indicates the actor lacks the authority for a mutation.
	ErrForbidden = errors.New("rbac: forbidden")
	// ErrUnknownPermission indicates a permission code outside the catalog.
	ErrUnknownPermission = errors.New("rbac: unknown permission")
	// ErrInvalidRole indicates a role outside the enumerated tiers.
	ErrInvalidRole = errors.New("rbac: invalid role")
	// ErrSelfDemotionForbidden blocks a superadmin from lowering their own role.
	ErrSelfDemotionForbidden = errors.New("rbac: cannot demote your own account")
	// ErrNotFound indicates the target user has no permission state.
	ErrNotFound = errors.New("rbac: permission state not found")
	// ErrConcurrencyConflict indicates the per-user mutation lock could not be
	// acquired within the bounded wait. Callers may retry.
	ErrConcurrencyConflict = errors.New("rbac: concurrent mutation in progress")
)
