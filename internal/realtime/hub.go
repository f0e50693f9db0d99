package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vinocount/session-service/internal/domain"
)

// Hub — внутрипроцессная реализация presence-каналов. Членство живёт только
// здесь: ни одной записи в БД, участник исчезает вместе со своим каналом.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*hubChannel]struct{} // sessionID -> подписчики
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]map[*hubChannel]struct{})}
}

func (h *Hub) OpenChannel(ctx context.Context, sessionID string) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := &hubChannel{
		hub:       h,
		sessionID: sessionID,
		events:    make(chan Event, 32),
	}

	h.mu.Lock()
	subs, ok := h.sessions[sessionID]
	if !ok {
		subs = make(map[*hubChannel]struct{})
		h.sessions[sessionID] = subs
	}
	subs[c] = struct{}{}
	snapshot := h.snapshotLocked(sessionID)
	h.mu.Unlock()

	// стартовый sync новому подписчику
	c.push(Event{Kind: EventSync, Members: snapshot})

	return c, nil
}

// Snapshot — текущий набор участников сессии (для HTTP-чтения без подписки).
func (h *Hub) Snapshot(sessionID string) []domain.Participant {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked(sessionID)
}

// snapshotLocked собирает канонический набор участников: по одной записи на
// user_id, самая свежая активность выигрывает. Вызывается под h.mu.
func (h *Hub) snapshotLocked(sessionID string) []domain.Participant {
	byUser := make(map[string]domain.Participant)
	for c := range h.sessions[sessionID] {
		c.mu.Lock()
		p, tracked := c.member, c.tracked
		c.mu.Unlock()
		if !tracked {
			continue
		}
		if prev, ok := byUser[p.UserID]; !ok || p.LastActivity.After(prev.LastActivity) {
			byUser[p.UserID] = p
		}
	}

	out := make([]domain.Participant, 0, len(byUser))
	for _, p := range byUser {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (h *Hub) broadcast(sessionID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.sessions[sessionID] {
		c.push(ev) // best-effort
	}
}

// syncAll рассылает свежий снапшот всем подписчикам сессии.
func (h *Hub) syncAll(sessionID string) {
	h.mu.RLock()
	snapshot := h.snapshotLocked(sessionID)
	subs := h.sessions[sessionID]
	for c := range subs {
		c.push(Event{Kind: EventSync, Members: snapshot})
	}
	h.mu.RUnlock()
}

func (h *Hub) remove(c *hubChannel) {
	h.mu.Lock()
	if subs, ok := h.sessions[c.sessionID]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.sessions, c.sessionID)
		}
	}
	h.mu.Unlock()
}

type hubChannel struct {
	hub       *Hub
	sessionID string
	events    chan Event

	mu      sync.Mutex
	member  domain.Participant
	tracked bool
	closed  bool
}

func (c *hubChannel) Events() <-chan Event { return c.events }

func (c *hubChannel) Track(ctx context.Context, p domain.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrNotSubscribed
	}
	p.SessionID = c.sessionID
	if p.LastActivity.IsZero() {
		p.LastActivity = time.Now()
	}
	c.member = p
	c.tracked = true
	c.mu.Unlock()

	c.hub.broadcast(c.sessionID, Event{Kind: EventJoin, Member: &p})
	c.hub.syncAll(c.sessionID)
	return nil
}

func (c *hubChannel) Touch(at time.Time) {
	c.mu.Lock()
	if c.closed || !c.tracked {
		c.mu.Unlock()
		return
	}
	c.member.LastActivity = at
	c.mu.Unlock()

	c.hub.syncAll(c.sessionID)
}

func (c *hubChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	member, tracked := c.member, c.tracked
	close(c.events)
	c.mu.Unlock()

	c.hub.remove(c)
	if tracked {
		c.hub.broadcast(c.sessionID, Event{Kind: EventLeave, Member: &member})
		c.hub.syncAll(c.sessionID)
	}
	return nil
}

// push — неблокирующая доставка; при переполнении буфера вытесняется самое
// старое событие, свежий sync важнее недоставленной истории. Под c.mu, чтобы
// не гоняться с close(events).
func (c *hubChannel) push(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		select {
		case <-c.events:
		default:
		}
		select {
		case c.events <- ev:
		default:
		}
	}
}
