package audit

import "time"

// Action enumerates the administrative mutations that get audited.
type Action string

const (
	ActionGrant      Action = "grant"
	ActionRevoke     Action = "revoke"
	ActionReset      Action = "reset"
	ActionRoleChange Action = "role_change"
)

// Valid reports whether the action is one of the enumerated kinds.
func (a Action) Valid() bool {
	switch a {
	case ActionGrant, ActionRevoke, ActionReset, ActionRoleChange:
		return true
	}
	return false
}

// Entry is one immutable audit record. IDs are assigned monotonically on
// append; entries are never updated or deleted.
type Entry struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	Action         Action    `json:"action"`
	PermissionCode string    `json:"permission_code,omitempty"`
	PreviousRole   string    `json:"previous_role,omitempty"`
	NewRole        string    `json:"new_role,omitempty"`
	PerformedBy    int64     `json:"performed_by"`
	Reason         string    `json:"reason,omitempty"`
	At             time.Time `json:"at"`
}
