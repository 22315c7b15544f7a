package rbac

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/audit"
	"github.com/stewardhq/steward/internal/catalog"
)

// memStore is an in-memory Store that mimics the transactional contract:
// failed applies leave state untouched and append nothing.
type memStore struct {
	mu      sync.Mutex
	states  map[int64]PermissionState
	entries []audit.Entry
	nextID  int64
}

func newMemStore() *memStore {
	return &memStore{states: make(map[int64]PermissionState), nextID: 1}
}

func (m *memStore) seed(state PermissionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.UserID] = state.Clone()
}

func (m *memStore) GetState(_ context.Context, userID int64) (PermissionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[userID]
	if !ok {
		return PermissionState{}, ErrNotFound
	}
	return state.Clone(), nil
}

func (m *memStore) Apply(_ context.Context, userID int64, fn func(state *PermissionState) (audit.Entry, error)) (audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.states[userID]
	if !ok {
		return audit.Entry{}, ErrNotFound
	}
	working := current.Clone()
	entry, err := fn(&working)
	if err != nil {
		return audit.Entry{}, err
	}
	entry.ID = m.nextID
	m.nextID++
	m.states[userID] = working
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *memStore) auditCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls []int64
	err   error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, userID)
	return nil
}

func (r *recordingInvalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestEngine(store Store) (*Engine, *recordingInvalidator) {
	inv := &recordingInvalidator{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(store, catalog.Default(), inv, logger, time.Second), inv
}

var superadmin = Actor{ID: 1, Role: RoleSuperadmin}

func TestGrantRequiresSuperadmin(t *testing.T) {
	store := newMemStore()
	store.seed(NewPermissionState(10, RoleUser))
	engine, inv := newTestEngine(store)

	for _, actor := range []Actor{{ID: 2, Role: RoleAdmin}, {ID: 3, Role: RoleUser}} {
		_, err := engine.Grant(context.Background(), actor, 10, catalog.PermAuditView, "")
		require.ErrorIs(t, err, ErrForbidden)
	}

	// Denied mutations leave no trace: no audit entry, no invalidation, no
	// state change.
	assert.Equal(t, 0, store.auditCount())
	assert.Equal(t, 0, inv.count())
	state, err := store.GetState(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, state.Grants)
}

func TestGrantUnknownPermission(t *testing.T) {
	store := newMemStore()
	store.seed(NewPermissionState(10, RoleUser))
	engine, _ := newTestEngine(store)

	_, err := engine.Grant(context.Background(), superadmin, 10, "users.obliterate", "")
	require.ErrorIs(t, err, ErrUnknownPermission)
	assert.Equal(t, 0, store.auditCount())
}

func TestGrantClearsOpposingRevocation(t *testing.T) {
	store := newMemStore()
	seed := NewPermissionState(10, RoleUser)
	seed.Revocations[catalog.PermSettingsView] = struct{}{}
	store.seed(seed)
	engine, inv := newTestEngine(store)

	entry, err := engine.Grant(context.Background(), superadmin, 10, catalog.PermSettingsView, "restore access")
	require.NoError(t, err)
	assert.Equal(t, audit.ActionGrant, entry.Action)
	assert.Equal(t, catalog.PermSettingsView, entry.PermissionCode)
	assert.Equal(t, int64(1), entry.PerformedBy)
	assert.NotZero(t, entry.ID)
	assert.False(t, entry.At.IsZero())

	state, err := store.GetState(context.Background(), 10)
	require.NoError(t, err)
	assert.Contains(t, state.Grants, catalog.PermSettingsView)
	assert.NotContains(t, state.Revocations, catalog.PermSettingsView)
	assert.Equal(t, 1, inv.count())
}

func TestRevokeClearsOpposingGrant(t *testing.T) {
	store := newMemStore()
	seed := NewPermissionState(10, RoleUser)
	seed.Grants[catalog.PermAuditView] = struct{}{}
	store.seed(seed)
	engine, _ := newTestEngine(store)

	_, err := engine.Revoke(context.Background(), superadmin, 10, catalog.PermAuditView, "")
	require.NoError(t, err)

	state, err := store.GetState(context.Background(), 10)
	require.NoError(t, err)
	assert.Contains(t, state.Revocations, catalog.PermAuditView)
	assert.NotContains(t, state.Grants, catalog.PermAuditView)
}

func TestDisjointnessHeldAcrossMutations(t *testing.T) {
	store := newMemStore()
	store.seed(NewPermissionState(10, RoleUser))
	engine, _ := newTestEngine(store)

	ctx := context.Background()
	code := catalog.PermUsersEdit
	_, err := engine.Grant(ctx, superadmin, 10, code, "")
	require.NoError(t, err)
	_, err = engine.Revoke(ctx, superadmin, 10, code, "")
	require.NoError(t, err)
	_, err = engine.Grant(ctx, superadmin, 10, code, "")
	require.NoError(t, err)

	state, err := store.GetState(ctx, 10)
	require.NoError(t, err)
	for grant := range state.Grants {
		assert.NotContains(t, state.Revocations, grant)
	}
}

func TestIdempotentGrantStillAudited(t *testing.T) {
	store := newMemStore()
	store.seed(NewPermissionState(10, RoleUser))
	engine, _ := newTestEngine(store)

	ctx := context.Background()
	_, err := engine.Grant(ctx, superadmin, 10, catalog.PermAuditView, "first")
	require.NoError(t, err)
	_, err = engine.Grant(ctx, superadmin, 10, catalog.PermAuditView, "second")
	require.NoError(t, err)

	// The second grant changes nothing but the administrative act is still
	// recorded.
	assert.Equal(t, 2, store.auditCount())
	state, err := store.GetState(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, state.Grants, 1)
}

func TestResetClearsBothDirectSets(t *testing.T) {
	store := newMemStore()
	seed := NewPermissionState(10, RoleAdmin)
	seed.Grants[catalog.PermAuditExport] = struct{}{}
	seed.Revocations[catalog.PermUsersEdit] = struct{}{}
	store.seed(seed)
	engine, _ := newTestEngine(store)

	entry, err := engine.Reset(context.Background(), superadmin, 10, "clean slate")
	require.NoError(t, err)
	assert.Equal(t, audit.ActionReset, entry.Action)

	state, err := store.GetState(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, state.Grants)
	assert.Empty(t, state.Revocations)
	assert.Equal(t, RoleAdmin, state.Role)
}

func TestChangeRolePreservesDirectSets(t *testing.T) {
	store := newMemStore()
	seed := NewPermissionState(10, RoleAdmin)
	seed.Grants[catalog.PermAuditExport] = struct{}{}
	store.seed(seed)
	engine, _ := newTestEngine(store)

	entry, err := engine.ChangeRole(context.Background(), superadmin, 10, RoleUser, "offboarding")
	require.NoError(t, err)
	assert.Equal(t, audit.ActionRoleChange, entry.Action)
	assert.Equal(t, "admin", entry.PreviousRole)
	assert.Equal(t, "user", entry.NewRole)

	state, err := store.GetState(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, state.Role)
	assert.Contains(t, state.Grants, catalog.PermAuditExport)
}

func TestChangeRoleRejectsInvalidRole(t *testing.T) {
	store := newMemStore()
	store.seed(NewPermissionState(10, RoleUser))
	engine, _ := newTestEngine(store)

	_, err := engine.ChangeRole(context.Background(), superadmin, 10, Role("moderator"), "")
	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestSelfDemotionForbidden(t *testing.T) {
	store := newMemStore()
	store.seed(NewPermissionState(1, RoleSuperadmin))
	engine, _ := newTestEngine(store)

	_, err := engine.ChangeRole(context.Background(), superadmin, superadmin.ID, RoleAdmin, "")
	require.ErrorIs(t, err, ErrSelfDemotionForbidden)

	// Re-asserting the current role on yourself is allowed.
	_, err = engine.ChangeRole(context.Background(), superadmin, superadmin.ID, RoleSuperadmin, "")
	require.NoError(t, err)
	assert.Equal(t, 1, store.auditCount())
}

func TestMutationOnMissingUser(t *testing.T) {
	store := newMemStore()
	engine, inv := newTestEngine(store)

	_, err := engine.Grant(context.Background(), superadmin, 404, catalog.PermAuditView, "")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, inv.count())
}

func TestInvalidationFailureFailsMutation(t *testing.T) {
	store := newMemStore()
	store.seed(NewPermissionState(10, RoleUser))
	inv := &recordingInvalidator{err: context.DeadlineExceeded}
	engine := NewEngine(store, catalog.Default(), inv, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second)

	_, err := engine.Grant(context.Background(), superadmin, 10, catalog.PermAuditView, "")
	require.Error(t, err)
}

func TestConcurrentGrantsOnSameUserBothSucceed(t *testing.T) {
	store := newMemStore()
	store.seed(NewPermissionState(10, RoleUser))
	engine, _ := newTestEngine(store)

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make([]error, 2)
	codes := []string{catalog.PermAuditView, catalog.PermUsersView}
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Grant(ctx, superadmin, 10, codes[i], "")
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Both grants land: serialization means no lost update.
	state, err := store.GetState(ctx, 10)
	require.NoError(t, err)
	assert.Contains(t, state.Grants, codes[0])
	assert.Contains(t, state.Grants, codes[1])
	assert.Equal(t, 2, store.auditCount())
}
