package realtime

import (
	"context"
	"time"

	"github.com/vinocount/session-service/internal/domain"
)

type EventKind string

const (
	// EventSync — полный снапшот участников; единственный источник истины.
	EventSync EventKind = "sync"
	// EventJoin / EventLeave — наблюдательные события для UI (тосты),
	// канонический набор участников они не меняют.
	EventJoin  EventKind = "join"
	EventLeave EventKind = "leave"
	// EventError — обрыв канала (аналог CHANNEL_ERROR).
	EventError EventKind = "error"
)

type Event struct {
	Kind    EventKind
	Members []domain.Participant // sync: полный снапшот
	Member  *domain.Participant  // join/leave
}

// Channel — эфемерный presence-канал одной сессии. Закрытие канала — это
// выход участника; после Close() поток Events закрывается.
type Channel interface {
	// Events отдаёт события канала; закрывается при Close.
	Events() <-chan Event
	// Track публикует собственную запись участника — единственная запись,
	// которую клиент делает в канал.
	Track(ctx context.Context, p domain.Participant) error
	// Touch обновляет last-activity своей записи.
	Touch(at time.Time)
	Close() error
}

// ChannelOpener открывает канал, привязанный к id сессии.
type ChannelOpener interface {
	OpenChannel(ctx context.Context, sessionID string) (Channel, error)
}
