package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vinocount/session-service/internal/domain"
)

type TrackerState int32

const (
	StateDisconnected TrackerState = iota
	StateConnecting
	StateSubscribed
)

// Tracker держит живой набор участников сессии, выведенный из presence-канала.
// Канонический набор меняет только sync: join/leave могут теряться транспортом,
// и инкрементальное применение увело бы его от истины.
type Tracker struct {
	opener    ChannelOpener
	sessionID string
	self      domain.Participant

	mu        sync.RWMutex
	state     TrackerState
	connected bool
	members   []domain.Participant

	ch        Channel
	cancel    context.CancelFunc
	done      chan struct{}
	updates   chan struct{}
	closeOnce sync.Once
}

func NewTracker(opener ChannelOpener, sessionID string, self domain.Participant) *Tracker {
	return &Tracker{
		opener:    opener,
		sessionID: sessionID,
		self:      self,
		done:      make(chan struct{}),
		updates:   make(chan struct{}, 1),
	}
}

// Start: Disconnected -> Connecting -> Subscribed; после подписки трекер
// публикует собственную запись — единственная его запись в канал.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateDisconnected {
		t.mu.Unlock()
		return fmt.Errorf("tracker already started")
	}
	t.state = StateConnecting
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	ch, err := t.opener.OpenChannel(ctx, t.sessionID)
	if err != nil {
		cancel()
		t.mu.Lock()
		t.state = StateDisconnected
		t.connected = false
		t.mu.Unlock()
		return fmt.Errorf("open presence channel: %w", err)
	}

	t.mu.Lock()
	t.ch = ch
	t.state = StateSubscribed
	t.connected = true
	t.mu.Unlock()

	go t.loop(ch)

	if t.self.LastActivity.IsZero() {
		t.self.LastActivity = time.Now()
	}
	if err := ch.Track(ctx, t.self); err != nil {
		// канал уже открыт — teardown обязан пройти через Close в любом случае
		return fmt.Errorf("track self: %w", err)
	}
	return nil
}

func (t *Tracker) loop(ch Channel) {
	defer close(t.done)
	for ev := range ch.Events() {
		t.apply(ev)
	}
	// поток закрыт — канал оборван или закрыт нами
	t.mu.Lock()
	t.state = StateDisconnected
	t.connected = false
	t.mu.Unlock()
	t.notify()
}

func (t *Tracker) apply(ev Event) {
	switch ev.Kind {
	case EventSync:
		t.mu.Lock()
		// снапшот замещает набор целиком, никакого слияния
		t.members = ev.Members
		t.connected = true
		t.mu.Unlock()
		t.notify()
	case EventJoin, EventLeave:
		// наблюдательные: полезны для тостов, набор не трогают
		if ev.Member != nil {
			slog.Debug("presence peer event",
				"session", t.sessionID, "kind", ev.Kind, "user", ev.Member.UserID)
		}
	case EventError:
		// связь потеряна: снимаем флаг, последний снапшот не чистим —
		// устаревший список лучше пустого
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
		t.notify()
	}
}

// Heartbeat обновляет last-activity собственной записи.
func (t *Tracker) Heartbeat(at time.Time) {
	t.mu.RLock()
	ch := t.ch
	subscribed := t.state == StateSubscribed
	t.mu.RUnlock()
	if subscribed && ch != nil {
		ch.Touch(at)
	}
}

// Participants — последний известный снапшот (может быть устаревшим, см. Connected).
func (t *Tracker) Participants() []domain.Participant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Participant, len(t.members))
	copy(out, t.members)
	return out
}

func (t *Tracker) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *Tracker) State() TrackerState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Updates — свёрнутый сигнал «состояние поменялось»; перечитать через Participants/Connected.
func (t *Tracker) Updates() <-chan struct{} { return t.updates }

func (t *Tracker) notify() {
	select {
	case t.updates <- struct{}{}:
	default:
	}
}

// Close безусловно освобождает канал, даже если Track не успел завершиться.
// Повторные вызовы безопасны.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		t.mu.RLock()
		ch := t.ch
		t.mu.RUnlock()
		if ch != nil {
			_ = ch.Close()
			<-t.done
		} else {
			t.mu.Lock()
			t.state = StateDisconnected
			t.connected = false
			t.mu.Unlock()
		}
	})
}
