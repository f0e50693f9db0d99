package domain

import "time"

// Participant существует только пока жив presence-канал; в БД не пишется.
type Participant struct {
	SessionID    string
	UserID       string
	DisplayName  string
	Role         RoleName
	LastActivity time.Time
}
