package http

import "time"

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateSessionRequest struct {
	Title         string `json:"title"`
	ExpectedItems int64  `json:"expected_items"`
}

type SessionItem struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Status        string    `json:"status"`
	ExpectedItems int64     `json:"expected_items"`
	OwnerID       string    `json:"owner_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type SessionsListResponse struct {
	Items      []SessionItem `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type ActionRequest struct {
	Action string `json:"action"` // approved|flagged|reopened
	Note   string `json:"note"`
}

type ActionResponse struct {
	AuditID   string    `json:"audit_id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// PartialActionResponse — действие прошло наполовину; клиент ретраит только
// недостающую часть.
type PartialActionResponse struct {
	Error         string `json:"error"`
	StatusApplied bool   `json:"status_applied"`
	AuditWritten  bool   `json:"audit_written"`
}

type AuditEntryItem struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Action    string    `json:"action"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditListResponse struct {
	Items []AuditEntryItem `json:"items"`
}

type ParticipantItem struct {
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	LastActivity time.Time `json:"last_activity"`
}

type ParticipantsResponse struct {
	Items []ParticipantItem `json:"items"`
}

type RoleItem struct {
	Name    string                       `json:"name"`
	BuiltIn bool                         `json:"built_in"`
	Grants  map[string]map[string]string `json:"grants,omitempty"`
}

type RolesListResponse struct {
	Items []RoleItem `json:"items"`
}

type SaveRoleRequest struct {
	Grants map[string]map[string]string `json:"grants"`
}
