package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for audit entries.
// There is deliberately no update or delete path.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AppendTx inserts an entry inside the caller's transaction and returns the
// assigned id. The mutation engine uses this so state change and audit append
// commit or roll back as one unit.
func (r *Repository) AppendTx(ctx context.Context, tx pgx.Tx, entry Entry) (int64, error) {
	if !entry.Action.Valid() {
		return 0, fmt.Errorf("audit: invalid action %q", entry.Action)
	}
	if entry.UserID == 0 || entry.PerformedBy == 0 {
		return 0, errors.New("audit: subject and actor required")
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO audit_entries (user_id, action, permission_code, previous_role, new_role, performed_by, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		entry.UserID,
		string(entry.Action),
		optionalText(entry.PermissionCode),
		optionalText(entry.PreviousRole),
		optionalText(entry.NewRole),
		entry.PerformedBy,
		optionalText(entry.Reason),
		at,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("audit: append: %w", err)
	}
	return id, nil
}

// ListByUser returns entries for one subject ordered by timestamp descending,
// newest first, with id as tiebreaker. Each call is an independent cursor
// over the persisted data.
func (r *Repository) ListByUser(ctx context.Context, userID int64, limit, offset int32) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, action, permission_code, previous_role, new_role, performed_by, reason, occurred_at
		FROM audit_entries
		WHERE user_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("audit: list by user: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var action string
		var code, prevRole, newRole, why pgtype.Text
		var at pgtype.Timestamptz
		if err := rows.Scan(&entry.ID, &entry.UserID, &action, &code, &prevRole, &newRole, &entry.PerformedBy, &why, &at); err != nil {
			return nil, err
		}
		entry.Action = Action(action)
		entry.PermissionCode = code.String
		entry.PreviousRole = prevRole.String
		entry.NewRole = newRole.String
		entry.Reason = why.String
		if at.Valid {
			entry.At = at.Time
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
