package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stewardhq/steward/internal/audit"
	"github.com/stewardhq/steward/internal/platform/db"
)

// Store abstracts permission-state persistence for the engine and resolver.
type Store interface {
	// GetState loads one user's permission state. Returns ErrNotFound when the
	// user has no record.
	GetState(ctx context.Context, userID int64) (PermissionState, error)
	// Apply runs fn against the current state inside a single transaction and
	// persists the modified state together with the audit entry fn returns.
	// Either both are committed or neither is observable.
	Apply(ctx context.Context, userID int64, fn func(state *PermissionState) (audit.Entry, error)) (audit.Entry, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool   *pgxpool.Pool
	audits *audit.Repository
}

// NewPGStore constructs the store. The audit repository is used for the
// transactional append inside Apply.
func NewPGStore(pool *pgxpool.Pool, audits *audit.Repository) *PGStore {
	return &PGStore{pool: pool, audits: audits}
}

var _ Store = (*PGStore)(nil)

const stateColumns = `user_id, role, grants, revocations, updated_at, updated_by`

// GetState loads the permission state for one user.
func (s *PGStore) GetState(ctx context.Context, userID int64) (PermissionState, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+stateColumns+` FROM user_permission_state WHERE user_id = $1`, userID)
	return scanState(row)
}

// EnsureState creates the implicit initial record for a freshly created user:
// role defaults, empty direct sets. Existing records are left untouched.
func (s *PGStore) EnsureState(ctx context.Context, userID int64, role Role, createdBy int64) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_permission_state (user_id, role, grants, revocations, updated_at, updated_by)
		VALUES ($1, $2, '{}', '{}', $3, $4)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, string(role), time.Now().UTC(), createdBy)
	if err != nil {
		return fmt.Errorf("rbac: ensure state: %w", err)
	}
	return nil
}

// Apply performs the transactional read-modify-write with audit append.
// The row lock (FOR UPDATE) backs the engine's per-user serialization at the
// storage layer.
func (s *PGStore) Apply(ctx context.Context, userID int64, fn func(state *PermissionState) (audit.Entry, error)) (audit.Entry, error) {
	var entry audit.Entry
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+stateColumns+` FROM user_permission_state WHERE user_id = $1 FOR UPDATE`, userID)
		state, err := scanState(row)
		if err != nil {
			return err
		}

		entry, err = fn(&state)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE user_permission_state
			SET role = $2, grants = $3, revocations = $4, updated_at = $5, updated_by = $6
			WHERE user_id = $1`,
			userID, string(state.Role), state.GrantList(), state.RevocationList(), state.UpdatedAt, state.UpdatedBy)
		if err != nil {
			return fmt.Errorf("rbac: update state: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		id, err := s.audits.AppendTx(ctx, tx, entry)
		if err != nil {
			return err
		}
		entry.ID = id
		return nil
	})
	if err != nil {
		return audit.Entry{}, err
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (PermissionState, error) {
	var state PermissionState
	var role string
	var grants, revocations []string
	if err := row.Scan(&state.UserID, &role, &grants, &revocations, &state.UpdatedAt, &state.UpdatedBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PermissionState{}, ErrNotFound
		}
		return PermissionState{}, fmt.Errorf("rbac: scan state: %w", err)
	}
	state.Role = Role(role)
	state.Grants = make(map[string]struct{}, len(grants))
	for _, code := range grants {
		state.Grants[code] = struct{}{}
	}
	state.Revocations = make(map[string]struct{}, len(revocations))
	for _, code := range revocations {
		state.Revocations[code] = struct{}{}
	}
	return state, nil
}
