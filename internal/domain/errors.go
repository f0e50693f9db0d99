package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid session status transition")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrRoleNotFound      = errors.New("role not found")
	ErrBuiltInRole       = errors.New("built-in role cannot be modified")
	ErrNotSubscribed     = errors.New("presence channel is not subscribed")
)

// ValidationError — некорректный вход; не ретраится, отдаётся вызывающему как есть.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// PartialActionError — статус и аудит пишутся в два внешних ресурса без
// транзакции. Флаги говорят вызывающему, какая половина прошла, чтобы ретраить
// только недостающую, а не применять переход повторно.
type PartialActionError struct {
	StatusApplied bool
	AuditWritten  bool
	Err           error
}

func (e *PartialActionError) Error() string {
	return fmt.Sprintf("partial action (status=%v, audit=%v): %v", e.StatusApplied, e.AuditWritten, e.Err)
}

func (e *PartialActionError) Unwrap() error { return e.Err }
