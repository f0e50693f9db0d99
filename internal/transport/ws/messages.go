package ws

// Типы событий presence-канала
const (
	TypeSync       = "sync"       // полный снапшот участников
	TypeJoin       = "join"       // участник добавился (наблюдательное)
	TypeLeave      = "leave"      // участник вышел (наблюдательное)
	TypeInvalidate = "invalidate" // производные ключи устарели, перечитать
	TypeHeartbeat  = "heartbeat"  // от клиента: обновить last-activity
)

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type MemberItem struct {
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	Role         string `json:"role"`
	LastActivity int64  `json:"last_activity_unix"`
}

type SyncPayload struct {
	SessionID string       `json:"session_id"`
	Members   []MemberItem `json:"members"`
}

type PeerPayload struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type InvalidatePayload struct {
	SessionID string   `json:"session_id"`
	Keys      []string `json:"keys"`
}
