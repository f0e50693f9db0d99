package domain

import "time"

type SessionStatus string

const (
	SessionDraft     SessionStatus = "draft"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionDraft, SessionActive, SessionCompleted:
		return true
	}
	return false
}

// CanTransition: draft -> active -> completed; completed — архив, из него выхода нет,
// кроме reopen (completed -> active) отдельным привилегированным действием.
func (s SessionStatus) CanTransition(to SessionStatus) bool {
	switch s {
	case SessionDraft:
		return to == SessionActive
	case SessionActive:
		return to == SessionCompleted
	case SessionCompleted:
		return to == SessionActive
	}
	return false
}

type Session struct {
	ID            string        `db:"id"`
	Title         string        `db:"title"`
	Status        SessionStatus `db:"status"`
	ExpectedItems int64         `db:"expected_items"`
	OwnerID       string        `db:"owner_id"`
	CreatedAt     time.Time     `db:"created_at"`
}
