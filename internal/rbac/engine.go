package rbac

import (
	"context"
	"log/slog"
	"time"

	"github.com/stewardhq/steward/internal/audit"
)

// Invalidator drops derived permission state for one user after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// MutationMetrics counts mutation outcomes. Optional.
type MutationMetrics interface {
	RecordMutation(action, outcome string)
}

// Engine exposes the administrative mutations on permission state. Every
// operation authorizes the actor, serializes per target user, persists the
// change atomically with its audit entry, and invalidates the cache for the
// affected user before returning.
type Engine struct {
	store    Store
	catalog  CatalogPort
	cache    Invalidator
	logger   *slog.Logger
	metrics  MutationMetrics
	lockWait time.Duration
	locks    *userLocks
	clock    func() time.Time
}

// NewEngine wires a mutation engine.
func NewEngine(store Store, catalog CatalogPort, cache Invalidator, logger *slog.Logger, lockWait time.Duration) *Engine {
	if lockWait <= 0 {
		lockWait = 2 * time.Second
	}
	return &Engine{
		store:    store,
		catalog:  catalog,
		cache:    cache,
		logger:   logger,
		lockWait: lockWait,
		locks:    newUserLocks(),
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// SetMetrics attaches a mutation counter. Safe to skip in tests.
func (e *Engine) SetMetrics(metrics MutationMetrics) {
	e.metrics = metrics
}

// Grant adds code to the user's direct grants and clears any direct
// revocation of the same code. Granting an already granted code changes
// nothing but is still audited: the administrative intent is recorded.
func (e *Engine) Grant(ctx context.Context, actor Actor, userID int64, code, reason string) (audit.Entry, error) {
	code, err := e.checkPermissionMutation(actor, code)
	if err != nil {
		return audit.Entry{}, err
	}
	return e.mutate(ctx, actor, userID, func(state *PermissionState) (audit.Entry, error) {
		state.Grants[code] = struct{}{}
		delete(state.Revocations, code)
		return audit.Entry{
			UserID:         userID,
			Action:         audit.ActionGrant,
			PermissionCode: code,
			PerformedBy:    actor.ID,
			Reason:         reason,
		}, nil
	})
}

// Revoke adds code to the user's direct revocations and clears any direct
// grant of the same code. Symmetric to Grant, including audit-on-no-op.
func (e *Engine) Revoke(ctx context.Context, actor Actor, userID int64, code, reason string) (audit.Entry, error) {
	code, err := e.checkPermissionMutation(actor, code)
	if err != nil {
		return audit.Entry{}, err
	}
	return e.mutate(ctx, actor, userID, func(state *PermissionState) (audit.Entry, error) {
		state.Revocations[code] = struct{}{}
		delete(state.Grants, code)
		return audit.Entry{
			UserID:         userID,
			Action:         audit.ActionRevoke,
			PermissionCode: code,
			PerformedBy:    actor.ID,
			Reason:         reason,
		}, nil
	})
}

// Reset clears both direct sets, returning the user to pure role-default
// entitlement. The record itself is preserved.
func (e *Engine) Reset(ctx context.Context, actor Actor, userID int64, reason string) (audit.Entry, error) {
	if !Covers(actor.Role, RoleSuperadmin) {
		return audit.Entry{}, ErrForbidden
	}
	return e.mutate(ctx, actor, userID, func(state *PermissionState) (audit.Entry, error) {
		state.Grants = make(map[string]struct{})
		state.Revocations = make(map[string]struct{})
		return audit.Entry{
			UserID:      userID,
			Action:      audit.ActionReset,
			PerformedBy: actor.ID,
			Reason:      reason,
		}, nil
	})
}

// ChangeRole sets the user's role. Direct grants and revocations persist
// across role changes; a demoted admin keeps explicitly granted extras until
// they are separately revoked or reset. A superadmin cannot lower their own
// role, which guards against locking the last superadmin out.
func (e *Engine) ChangeRole(ctx context.Context, actor Actor, userID int64, newRole Role, reason string) (audit.Entry, error) {
	if !Covers(actor.Role, RoleSuperadmin) {
		return audit.Entry{}, ErrForbidden
	}
	if !newRole.Valid() {
		return audit.Entry{}, ErrInvalidRole
	}
	if actor.ID == userID && Compare(newRole, actor.Role) < 0 {
		return audit.Entry{}, ErrSelfDemotionForbidden
	}
	return e.mutate(ctx, actor, userID, func(state *PermissionState) (audit.Entry, error) {
		previous := state.Role
		state.Role = newRole
		return audit.Entry{
			UserID:       userID,
			Action:       audit.ActionRoleChange,
			PreviousRole: string(previous),
			NewRole:      string(newRole),
			PerformedBy:  actor.ID,
			Reason:       reason,
		}, nil
	})
}

// PromoteToAdmin is a convenience wrapper over ChangeRole.
func (e *Engine) PromoteToAdmin(ctx context.Context, actor Actor, userID int64, reason string) (audit.Entry, error) {
	return e.ChangeRole(ctx, actor, userID, RoleAdmin, reason)
}

// DemoteToUser is a convenience wrapper over ChangeRole.
func (e *Engine) DemoteToUser(ctx context.Context, actor Actor, userID int64, reason string) (audit.Entry, error) {
	return e.ChangeRole(ctx, actor, userID, RoleUser, reason)
}

// checkPermissionMutation runs the shared grant/revoke preconditions.
func (e *Engine) checkPermissionMutation(actor Actor, code string) (string, error) {
	if !Covers(actor.Role, RoleSuperadmin) {
		return "", ErrForbidden
	}
	code = normalizeCode(code)
	if !e.catalog.Has(code) {
		return "", ErrUnknownPermission
	}
	return code, nil
}

// mutate holds the per-user lock across read, apply, persist, audit append
// and cache invalidation. Failed mutations leave state unchanged and append
// no audit entry.
func (e *Engine) mutate(ctx context.Context, actor Actor, userID int64, fn func(state *PermissionState) (audit.Entry, error)) (audit.Entry, error) {
	release, err := e.locks.Acquire(ctx, userID, e.lockWait)
	if err != nil {
		return audit.Entry{}, err
	}
	defer release()

	now := e.clock()
	entry, err := e.store.Apply(ctx, userID, func(state *PermissionState) (audit.Entry, error) {
		entry, err := fn(state)
		if err != nil {
			return audit.Entry{}, err
		}
		state.UpdatedAt = now
		state.UpdatedBy = actor.ID
		entry.At = now
		return entry, nil
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordMutation("apply", "error")
		}
		return audit.Entry{}, err
	}

	// Synchronous invalidation: the next read for this user must not see a
	// stale cache hit.
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, userID); err != nil {
			if e.logger != nil {
				e.logger.Error("invalidate permission cache",
					slog.Int64("user_id", userID), slog.Any("error", err))
			}
			return audit.Entry{}, err
		}
	}

	if e.metrics != nil {
		e.metrics.RecordMutation(string(entry.Action), "ok")
	}
	if e.logger != nil {
		e.logger.Info("permission state mutated",
			slog.Int64("user_id", userID),
			slog.Int64("actor_id", actor.ID),
			slog.String("action", string(entry.Action)),
			slog.Int64("audit_id", entry.ID))
	}
	return entry, nil
}
