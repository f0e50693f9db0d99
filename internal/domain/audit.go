package domain

import "time"

type ActionKind string

const (
	ActionApproved ActionKind = "approved"
	ActionFlagged  ActionKind = "flagged"
	ActionReopened ActionKind = "reopened"
)

// AuditEntry неизменяем после записи: append-only, ни update, ни delete.
type AuditEntry struct {
	ID        string     `db:"id"`
	SessionID string     `db:"session_id"`
	Action    ActionKind `db:"action"`
	ActorID   string     `db:"actor_id"`
	ActorName string     `db:"actor_name"`
	Note      string     `db:"note"`
	CreatedAt time.Time  `db:"created_at"`
}
