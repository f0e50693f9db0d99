package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vinocount/session-service/internal/domain"
	"github.com/vinocount/session-service/internal/realtime"
	"github.com/vinocount/session-service/internal/security"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Server поднимает устройство на presence-канал сессии и гонит в него
// sync/join/leave плюс инвалидации фида изменений.
type Server struct {
	upgrader websocket.Upgrader
	hub      *realtime.Hub
	notifier *realtime.Notifier
	verifier *security.Verifier

	pingEvery time.Duration
}

func NewServer(hub *realtime.Hub, notifier *realtime.Notifier, verifier *security.Verifier, pingEvery time.Duration) *Server {
	if pingEvery <= 0 {
		pingEvery = 15 * time.Second
	}
	return &Server{
		hub:      hub,
		notifier: notifier,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: pingEvery,
	}
}

// WS endpoint: GET /ws/sessions/{id}?access_token=...
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if token == "" {
		http.Error(w, "missing access_token", http.StatusUnauthorized)
		return
	}
	claims, err := s.verifier.Parse(token)
	if err != nil {
		http.Error(w, "invalid access_token", http.StatusUnauthorized)
		return
	}
	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()

	channel, err := s.hub.OpenChannel(ctx, sessionID)
	if err != nil {
		slog.Warn("ws open channel failed", "session", sessionID, "err", err)
		return
	}
	// безусловный teardown: выход из хендлера всегда снимает членство
	defer channel.Close()

	invalidate := make(chan []domain.InvalidationKey, 8)
	sub, err := s.notifier.Subscribe(ctx, sessionID, func(keys []domain.InvalidationKey) {
		select {
		case invalidate <- keys:
		default:
		}
	})
	if err != nil {
		slog.Warn("ws subscribe changes failed", "session", sessionID, "err", err)
		return
	}
	defer sub.Unsubscribe()

	self := domain.Participant{
		SessionID:    sessionID,
		UserID:       claims.Subject,
		DisplayName:  claims.DisplayName,
		Role:         claims.Role,
		LastActivity: time.Now(),
	}
	if err := channel.Track(ctx, self); err != nil {
		slog.Warn("ws track failed", "session", sessionID, "user", self.UserID, "err", err)
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(conn, sessionID, channel, invalidate)
	}()

	s.readLoop(conn, channel)
	_ = conn.Close()
	<-done
}

func (s *Server) writeLoop(conn *websocket.Conn, sessionID string, channel realtime.Channel, invalidate <-chan []domain.InvalidationKey) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	send := func(msg Message) bool {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteJSON(msg) == nil
	}

	for {
		select {
		case ev, ok := <-channel.Events():
			if !ok {
				return
			}
			if !send(eventMessage(sessionID, ev)) {
				return
			}
		case keys := <-invalidate:
			out := make([]string, 0, len(keys))
			for _, k := range keys {
				out = append(out, string(k))
			}
			if !send(Message{Type: TypeInvalidate, Payload: InvalidatePayload{SessionID: sessionID, Keys: out}}) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (s *Server) readLoop(conn *websocket.Conn, channel realtime.Channel) {
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
		channel.Touch(time.Now())
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case TypeHeartbeat:
			channel.Touch(time.Now())
		default:
			// ignore
		}
	}
}

func eventMessage(sessionID string, ev realtime.Event) Message {
	switch ev.Kind {
	case realtime.EventSync:
		items := make([]MemberItem, 0, len(ev.Members))
		for _, p := range ev.Members {
			items = append(items, MemberItem{
				UserID:       p.UserID,
				DisplayName:  p.DisplayName,
				Role:         string(p.Role),
				LastActivity: p.LastActivity.Unix(),
			})
		}
		return Message{Type: TypeSync, Payload: SyncPayload{SessionID: sessionID, Members: items}}
	case realtime.EventJoin, realtime.EventLeave:
		kind := TypeJoin
		if ev.Kind == realtime.EventLeave {
			kind = TypeLeave
		}
		p := PeerPayload{SessionID: sessionID}
		if ev.Member != nil {
			p.UserID = ev.Member.UserID
			p.DisplayName = ev.Member.DisplayName
		}
		return Message{Type: kind, Payload: p}
	default:
		return Message{Type: string(ev.Kind)}
	}
}
