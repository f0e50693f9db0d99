package domain

import "time"

type ChangeOp string

const (
	ChangeInsert ChangeOp = "insert"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
	ChangeAny    ChangeOp = "*"
)

// ChangeEvent — транзиентное уведомление «что-то поменялось»; payload строк
// не несёт и нигде не сохраняется, оно только триггерит refresh у потребителей.
type ChangeEvent struct {
	Table     string
	Op        ChangeOp
	SessionID string
	ArrivedAt time.Time
}

// InvalidationKey — ключ производного состояния, которое надо перечитать целиком.
type InvalidationKey string

const (
	KeySessionItems        InvalidationKey = "session_items"
	KeySessionList         InvalidationKey = "session_list"
	KeyRecognitionAttempts InvalidationKey = "recognition_attempts"
)
