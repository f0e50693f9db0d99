package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vinocount/session-service/internal/domain"
	"github.com/vinocount/session-service/internal/permission"
	"github.com/vinocount/session-service/internal/realtime"
)

// Identity — актор, от имени которого открывается сессия и выполняются действия.
type Identity struct {
	UserID      string
	DisplayName string
	Role        domain.RoleName
}

type statusUpdater interface {
	UpdateStatus(ctx context.Context, id string, to domain.SessionStatus) error
}

type auditLog interface {
	Append(ctx context.Context, e domain.AuditEntry) (*domain.AuditEntry, error)
}

// Coordinator — точка сборки per-session координации: presence, фид изменений,
// проверка прав и журналирование действий. Открытые сессии учитываются в
// реестре, но владелец истины — канал, не реестр.
type Coordinator struct {
	opener   realtime.ChannelOpener
	notifier *realtime.Notifier
	engine   *permission.Engine
	sessions statusUpdater
	audit    auditLog

	mu   sync.Mutex
	open map[string]*openSession
}

func New(opener realtime.ChannelOpener, notifier *realtime.Notifier, engine *permission.Engine, sessions statusUpdater, audit auditLog) *Coordinator {
	return &Coordinator{
		opener:   opener,
		notifier: notifier,
		engine:   engine,
		sessions: sessions,
		audit:    audit,
		open:     make(map[string]*openSession),
	}
}

// openSession — одна открытая координация; на сессию в процессе существует не
// больше одной, повторные Open получают её же (никаких дублей подписок).
type openSession struct {
	id      string
	tracker *realtime.Tracker
	sub     *realtime.Subscription
	cancel  context.CancelFunc
	refs    int

	mu      sync.Mutex
	pending map[domain.InvalidationKey]struct{}
	stale   chan struct{}
}

func (s *openSession) pushKeys(keys []domain.InvalidationKey) {
	s.mu.Lock()
	for _, k := range keys {
		s.pending[k] = struct{}{}
	}
	s.mu.Unlock()
	select {
	case s.stale <- struct{}{}:
	default:
	}
}

// Handle — лиза на открытую сессию. Close идемпотентен для каждого владельца;
// подписки рвутся, когда закрыт последний держатель.
type Handle struct {
	c    *Coordinator
	s    *openSession
	once sync.Once
}

// Open подключает identity к координации сессии. Если сессия уже открыта в
// этом процессе, возвращается существующая (второго presence-трека и второй
// подписки не возникает).
func (c *Coordinator) Open(ctx context.Context, sessionID string, self Identity) (*Handle, error) {
	c.mu.Lock()
	if s, ok := c.open[sessionID]; ok {
		s.refs++
		c.mu.Unlock()
		return &Handle{c: c, s: s}, nil
	}
	c.mu.Unlock()

	// подписки живут дольше ctx вызова Open: своя отмена на сессию
	sctx, cancel := context.WithCancel(context.Background())

	tracker := realtime.NewTracker(c.opener, sessionID, domain.Participant{
		SessionID:    sessionID,
		UserID:       self.UserID,
		DisplayName:  self.DisplayName,
		Role:         self.Role,
		LastActivity: time.Now(),
	})

	s := &openSession{
		id:      sessionID,
		tracker: tracker,
		cancel:  cancel,
		refs:    1,
		pending: make(map[domain.InvalidationKey]struct{}),
		stale:   make(chan struct{}, 1),
	}

	if err := tracker.Start(sctx); err != nil {
		tracker.Close()
		cancel()
		return nil, fmt.Errorf("start presence: %w", err)
	}

	sub, err := c.notifier.Subscribe(sctx, sessionID, s.pushKeys)
	if err != nil {
		tracker.Close()
		cancel()
		return nil, fmt.Errorf("subscribe changes: %w", err)
	}
	s.sub = sub

	c.mu.Lock()
	if existing, ok := c.open[sessionID]; ok {
		// параллельный Open успел раньше — наша копия лишняя
		existing.refs++
		c.mu.Unlock()
		sub.Unsubscribe()
		tracker.Close()
		cancel()
		return &Handle{c: c, s: existing}, nil
	}
	c.open[sessionID] = s
	c.mu.Unlock()

	slog.Info("session opened", "session", sessionID, "user", self.UserID)
	return &Handle{c: c, s: s}, nil
}

func (h *Handle) SessionID() string { return h.s.id }

// Participants — текущий (возможно устаревший, см. Connected) набор участников.
func (h *Handle) Participants() []domain.Participant { return h.s.tracker.Participants() }

func (h *Handle) Connected() bool { return h.s.tracker.Connected() }

// Stale сигналит о появлении невычитанных инвалидаций; ключи забираются TakeStale.
func (h *Handle) Stale() <-chan struct{} { return h.s.stale }

// TakeStale отдаёт накопленные ключи и очищает их. Сигналы свёрнуты: один
// приход Stale может нести несколько ключей.
func (h *Handle) TakeStale() []domain.InvalidationKey {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	out := make([]domain.InvalidationKey, 0, len(h.s.pending))
	for k := range h.s.pending {
		out = append(out, k)
	}
	h.s.pending = make(map[domain.InvalidationKey]struct{})
	return out
}

func (h *Handle) Heartbeat(at time.Time) { h.s.tracker.Heartbeat(at) }

// Close освобождает лизу; повторные вызовы безопасны. Подписки и канал
// закрываются, когда закрыт последний держатель, даже если Track ещё в полёте.
func (h *Handle) Close() {
	h.once.Do(func() { h.c.release(h.s) })
}

func (c *Coordinator) release(s *openSession) {
	c.mu.Lock()
	s.refs--
	last := s.refs == 0
	if last {
		delete(c.open, s.id)
	}
	c.mu.Unlock()

	if last {
		s.sub.Unsubscribe()
		s.tracker.Close()
		s.cancel()
		slog.Info("session closed", "session", s.id)
	}
}

// состояние-цель и требуемый уровень действия для каждого вида
var actionSpecs = map[domain.ActionKind]struct {
	action string
	target domain.SessionStatus
}{
	domain.ActionApproved: {permission.ActionApprove, domain.SessionCompleted},
	domain.ActionFlagged:  {permission.ActionFlag, domain.SessionActive},
	domain.ActionReopened: {permission.ActionReopen, domain.SessionActive},
}

// PerformAction — гейтированное действие: проверка прав, переход статуса во
// внешнем сторе, запись в аудит. Отказ в правах не производит никаких побочных
// эффектов. Две записи не атомарны: при расхождении возвращается
// PartialActionError с флагами, какая половина прошла.
func (c *Coordinator) PerformAction(ctx context.Context, sessionID string, kind domain.ActionKind, actor Identity, note string) (*domain.AuditEntry, error) {
	spec, ok := actionSpecs[kind]
	if !ok {
		return nil, &domain.ValidationError{Field: "action", Msg: "unknown action kind"}
	}

	if !c.engine.Evaluate(actor.Role, domain.ModuleInventorySession, spec.action) {
		slog.Info("action denied",
			"session", sessionID, "action", kind, "user", actor.UserID, "role", actor.Role)
		return nil, domain.ErrPermissionDenied
	}

	if err := c.sessions.UpdateStatus(ctx, sessionID, spec.target); err != nil {
		// статус не применён, аудита нет — обычная ошибка, можно ретраить целиком
		return nil, fmt.Errorf("update status: %w", err)
	}

	entry, err := c.audit.Append(ctx, domain.AuditEntry{
		SessionID: sessionID,
		Action:    kind,
		ActorID:   actor.UserID,
		ActorName: actor.DisplayName,
		Note:      note,
	})
	if err != nil {
		// статус уже применён — сказать об этом явно, чтобы ретраили только аудит
		slog.Error("audit append failed after status update",
			"session", sessionID, "action", kind, "err", err)
		return nil, &domain.PartialActionError{StatusApplied: true, AuditWritten: false, Err: err}
	}

	slog.Info("action recorded",
		"session", sessionID, "action", kind, "user", actor.UserID, "audit_id", entry.ID)
	return entry, nil
}
