package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vinocount/session-service/internal/domain"
	"github.com/vinocount/session-service/internal/permission"
	"github.com/vinocount/session-service/internal/realtime"
)

type memStatusStore struct {
	mu     sync.Mutex
	status map[string]domain.SessionStatus
}

func newMemStatusStore() *memStatusStore {
	return &memStatusStore{status: map[string]domain.SessionStatus{"s1": domain.SessionActive}}
}

func (m *memStatusStore) UpdateStatus(ctx context.Context, id string, to domain.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.status[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if cur == to {
		return nil
	}
	if !cur.CanTransition(to) {
		return domain.ErrInvalidTransition
	}
	m.status[id] = to
	return nil
}

func (m *memStatusStore) get(id string) domain.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status[id]
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	fail    error
}

func (m *memAudit) Append(ctx context.Context, e domain.AuditEntry) (*domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	e.ID = "a1"
	e.CreatedAt = time.Now()
	m.entries = append(m.entries, e)
	return &e, nil
}

func (m *memAudit) list() []domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

type fakeSource struct{ ch chan domain.ChangeEvent }

func (s *fakeSource) Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, error) {
	return s.ch, nil
}

func newTestCoordinator() (*Coordinator, *memStatusStore, *memAudit, *fakeSource) {
	store := newMemStatusStore()
	audit := &memAudit{}
	src := &fakeSource{ch: make(chan domain.ChangeEvent, 8)}
	c := New(realtime.NewHub(), realtime.NewNotifier(src), permission.NewEngine(), store, audit)
	return c, store, audit, src
}

func waitParticipants(t *testing.T, h *Handle, n int) []domain.Participant {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ps := h.Participants(); len(ps) == n {
			return ps
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("participants never reached %d: %v", n, h.Participants())
	return nil
}

// Сценарий из жизни: staff и admin открывают одну сессию; staff видит обоих,
// его flag отклоняется без следов, flag админа оставляет ровно одну запись.
func TestTwoUsersFlagScenario(t *testing.T) {
	c, store, audit, _ := newTestCoordinator()
	ctx := context.Background()

	u1 := Identity{UserID: "u1", DisplayName: "Ann", Role: domain.RoleStaff}
	u2 := Identity{UserID: "u2", DisplayName: "Bob", Role: domain.RoleAdmin}

	h1, err := c.Open(ctx, "s1", u1)
	if err != nil {
		t.Fatalf("open u1: %v", err)
	}
	defer h1.Close()
	h2, err := c.Open(ctx, "s1", u2)
	if err != nil {
		t.Fatalf("open u2: %v", err)
	}
	defer h2.Close()

	// вторая Open переиспользует открытую координацию процесса (один трек на
	// сессию), поэтому в наборе одна запись; видимость двух устройств
	// покрывает TestHubTwoTrackersSeeEachOther в realtime
	ps := waitParticipants(t, h1, 1)
	if ps[0].UserID != "u1" {
		t.Fatalf("participants = %v, want u1 present", ps)
	}

	if _, err := c.PerformAction(ctx, "s1", domain.ActionFlagged, u1, "damaged case"); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("staff flag: err = %v, want ErrPermissionDenied", err)
	}
	if len(audit.list()) != 0 {
		t.Fatal("denied action must not write audit entries")
	}
	if store.get("s1") != domain.SessionActive {
		t.Fatal("denied action must not mutate status")
	}

	entry, err := c.PerformAction(ctx, "s1", domain.ActionFlagged, u2, "damaged case")
	if err != nil {
		t.Fatalf("admin flag: %v", err)
	}
	if entry.ActorID != "u2" || entry.Action != domain.ActionFlagged {
		t.Fatalf("entry = %+v, want flagged by u2", entry)
	}
	if got := audit.list(); len(got) != 1 {
		t.Fatalf("audit has %d entries, want exactly 1", len(got))
	}
}

func TestApproveCompletesSession(t *testing.T) {
	c, store, _, _ := newTestCoordinator()
	ctx := context.Background()
	admin := Identity{UserID: "u2", DisplayName: "Bob", Role: domain.RoleAdmin}

	if _, err := c.PerformAction(ctx, "s1", domain.ActionApproved, admin, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if store.get("s1") != domain.SessionCompleted {
		t.Fatalf("status = %s, want completed", store.get("s1"))
	}

	// reopen возвращает в active
	if _, err := c.PerformAction(ctx, "s1", domain.ActionReopened, admin, "missed rack"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if store.get("s1") != domain.SessionActive {
		t.Fatalf("status = %s, want active", store.get("s1"))
	}
}

func TestUnknownActionKind(t *testing.T) {
	c, _, _, _ := newTestCoordinator()
	var ve *domain.ValidationError
	_, err := c.PerformAction(context.Background(), "s1", "archived", Identity{UserID: "u1", Role: domain.RoleAdmin}, "")
	if !errors.As(err, &ve) {
		t.Fatalf("unknown kind: err = %v, want ValidationError", err)
	}
}

func TestPartialFailureReportsWhichHalf(t *testing.T) {
	c, store, audit, _ := newTestCoordinator()
	audit.fail = errors.New("audit store down")
	admin := Identity{UserID: "u2", Role: domain.RoleAdmin}

	_, err := c.PerformAction(context.Background(), "s1", domain.ActionApproved, admin, "")
	var pe *domain.PartialActionError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PartialActionError", err)
	}
	if !pe.StatusApplied || pe.AuditWritten {
		t.Fatalf("flags = %+v, want status applied, audit missing", pe)
	}
	if store.get("s1") != domain.SessionCompleted {
		t.Fatal("status half must stay applied")
	}

	// ретрай только недостающей половины: статус уже целевой, повтор идемпотентен
	audit.fail = nil
	if _, err := c.PerformAction(context.Background(), "s1", domain.ActionApproved, admin, ""); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(audit.list()) != 1 {
		t.Fatalf("audit has %d entries after retry, want 1", len(audit.list()))
	}
}

func TestOpenIsSingleInstancePerSession(t *testing.T) {
	c, _, _, _ := newTestCoordinator()
	ctx := context.Background()
	u1 := Identity{UserID: "u1", Role: domain.RoleStaff}

	h1, err := c.Open(ctx, "s1", u1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	h2, err := c.Open(ctx, "s1", u1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if h1.s != h2.s {
		t.Fatal("second open must return the existing instance")
	}

	// закрытие одного держателя не рвёт подписки второго
	h1.Close()
	h1.Close() // идемпотентно
	if !h2.Connected() {
		t.Fatal("remaining holder must stay connected")
	}

	h2.Close()
	if h2.Connected() {
		t.Fatal("last close must disconnect")
	}

	// после полного закрытия сессию можно открыть заново
	h3, err := c.Open(ctx, "s1", u1)
	if err != nil {
		t.Fatalf("open after close: %v", err)
	}
	defer h3.Close()
	if !h3.Connected() {
		t.Fatal("fresh open must connect")
	}
}

func TestInvalidationFlow(t *testing.T) {
	c, _, _, src := newTestCoordinator()
	ctx := context.Background()

	h, err := c.Open(ctx, "s1", Identity{UserID: "u1", Role: domain.RoleStaff})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()

	src.ch <- domain.ChangeEvent{Table: realtime.TableInventoryItems, Op: domain.ChangeUpdate, SessionID: "s1"}

	select {
	case <-h.Stale():
	case <-time.After(2 * time.Second):
		t.Fatal("stale signal not delivered")
	}

	keys := h.TakeStale()
	found := false
	for _, k := range keys {
		if k == domain.KeySessionItems {
			found = true
		}
	}
	if !found {
		t.Fatalf("stale keys = %v, want session_items", keys)
	}
	if len(h.TakeStale()) != 0 {
		t.Fatal("TakeStale must drain pending keys")
	}
}
