package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/vinocount/session-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

// PGListener слушает LISTEN/NOTIFY постгреса и раздаёт события подписчикам.
// Один физический LISTEN на процесс, фильтрация по сессии — в Notifier.
type PGListener struct {
	dsn     string
	channel string
	backoff time.Duration

	mu   sync.Mutex
	subs map[chan domain.ChangeEvent]struct{}
}

func NewPGListener(dsn, channel string, backoff time.Duration) *PGListener {
	if backoff <= 0 {
		backoff = time.Second
	}
	return &PGListener{
		dsn:     dsn,
		channel: channel,
		backoff: backoff,
		subs:    make(map[chan domain.ChangeEvent]struct{}),
	}
}

func (l *PGListener) Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan domain.ChangeEvent, 64)
	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs, ch)
		l.mu.Unlock()
	}()
	return ch, nil
}

// Run держит соединение живым до отмены ctx. После каждого успешного
// переподключения рассылается reset-маркер: события окна обрыва потеряны,
// потребители должны перечитать всё.
func (l *PGListener) Run(ctx context.Context) {
	backoff := l.backoff
	reconnected := false

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := pgx.Connect(ctx, l.dsn)
		if err != nil {
			slog.Warn("pglisten connect failed", "err", err)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
			slog.Warn("pglisten LISTEN failed", "channel", l.channel, "err", err)
			_ = conn.Close(ctx)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = l.backoff
		if reconnected {
			l.broadcast(domain.ChangeEvent{Table: TableReset, Op: domain.ChangeAny, ArrivedAt: time.Now()})
		}
		reconnected = true
		slog.Info("pglisten subscribed", "channel", l.channel)

		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					_ = conn.Close(context.Background())
					return
				}
				slog.Warn("pglisten connection lost", "err", err)
				_ = conn.Close(context.Background())
				break
			}
			ev, err := parseNotification(n.Payload)
			if err != nil {
				slog.Debug("pglisten bad payload", "payload", n.Payload, "err", err)
				continue
			}
			l.broadcast(ev)
		}
	}
}

func (l *PGListener) broadcast(ev domain.ChangeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.subs {
		select {
		case ch <- ev:
		default:
			// подписчик не успевает — событие теряется; фид и так at-least-once
		}
	}
}

func parseNotification(payload string) (domain.ChangeEvent, error) {
	var raw struct {
		Table     string `json:"table"`
		Op        string `json:"op"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return domain.ChangeEvent{}, err
	}
	return domain.ChangeEvent{
		Table:     raw.Table,
		Op:        domain.ChangeOp(raw.Op),
		SessionID: raw.SessionID,
		ArrivedAt: time.Now(),
	}, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
