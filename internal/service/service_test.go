package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/vinocount/session-service/internal/domain"
	"github.com/vinocount/session-service/internal/permission"
)

// memAuditStore — потокобезопасный append-only стор для тестов.
type memAuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	seq     int
}

func (m *memAuditStore) Append(ctx context.Context, e *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if e.ID == "" {
		e.ID = string(rune('a' + m.seq))
	}
	e.CreatedAt = time.Now().Add(time.Duration(m.seq) * time.Millisecond)
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memAuditStore) ForSession(ctx context.Context, sessionID string) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditEntry, 0)
	for _, e := range m.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func TestAuditAppendAndRead(t *testing.T) {
	svc := NewAuditService(&memAuditStore{})
	ctx := context.Background()

	entry, err := svc.Append(ctx, domain.AuditEntry{
		SessionID: "s1",
		Action:    domain.ActionApproved,
		ActorID:   "u1",
		ActorName: "Ann",
		Note:      "all counted",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Fatal("append must assign id and timestamp")
	}

	got, err := svc.ForSession(ctx, "s1")
	if err != nil {
		t.Fatalf("forSession: %v", err)
	}
	if len(got) != 1 || got[0].ID != entry.ID {
		t.Fatalf("forSession = %v, want the appended entry", got)
	}
}

func TestAuditAppendValidation(t *testing.T) {
	svc := NewAuditService(&memAuditStore{})
	ctx := context.Background()

	var ve *domain.ValidationError
	if _, err := svc.Append(ctx, domain.AuditEntry{ActorID: "u1"}); !errors.As(err, &ve) {
		t.Fatalf("missing session: err = %v, want ValidationError", err)
	}
	if _, err := svc.Append(ctx, domain.AuditEntry{SessionID: "s1"}); !errors.As(err, &ve) {
		t.Fatalf("missing actor: err = %v, want ValidationError", err)
	}

	// по содержимому append не отклоняет: пустая note допустима
	if _, err := svc.Append(ctx, domain.AuditEntry{SessionID: "s1", ActorID: "u1"}); err != nil {
		t.Fatalf("append without note: %v", err)
	}
}

func TestAuditOrderStable(t *testing.T) {
	svc := NewAuditService(&memAuditStore{})
	ctx := context.Background()

	for _, kind := range []domain.ActionKind{domain.ActionFlagged, domain.ActionApproved, domain.ActionReopened} {
		if _, err := svc.Append(ctx, domain.AuditEntry{SessionID: "s1", ActorID: "u1", Action: kind}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	first, _ := svc.ForSession(ctx, "s1")
	second, _ := svc.ForSession(ctx, "s1")
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("len = %d/%d, want 3", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatal("repeated reads must return the same order")
		}
		if i > 0 && first[i].CreatedAt.Before(first[i-1].CreatedAt) {
			t.Fatal("entries must be in non-decreasing timestamp order")
		}
	}
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	seq      int
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*domain.Session)}
}

func (m *memSessionStore) Create(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	s.ID = string(rune('0' + m.seq))
	s.CreatedAt = time.Now()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionStore) List(ctx context.Context, limit int, cursor string) ([]domain.Session, string, error) {
	return nil, "", nil
}

func (m *memSessionStore) UpdateStatus(ctx context.Context, id string, to domain.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if s.Status == to {
		return nil
	}
	if !s.Status.CanTransition(to) {
		return domain.ErrInvalidTransition
	}
	s.Status = to
	return nil
}

func TestSessionCreateValidation(t *testing.T) {
	svc := NewSessionService(newMemSessionStore())
	ctx := context.Background()

	var ve *domain.ValidationError
	if _, err := svc.Create(ctx, "   ", 10, "u1"); !errors.As(err, &ve) {
		t.Fatalf("empty title: err = %v, want ValidationError", err)
	}

	s, err := svc.Create(ctx, "cellar recount", 120, "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Status != domain.SessionDraft {
		t.Fatalf("new session status = %s, want draft", s.Status)
	}
}

func TestSessionStatusLifecycle(t *testing.T) {
	store := newMemSessionStore()
	svc := NewSessionService(store)
	ctx := context.Background()

	s, _ := svc.Create(ctx, "cellar recount", 0, "u1")

	if err := svc.UpdateStatus(ctx, s.ID, domain.SessionCompleted); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("draft->completed: err = %v, want ErrInvalidTransition", err)
	}
	if err := svc.UpdateStatus(ctx, s.ID, domain.SessionActive); err != nil {
		t.Fatalf("draft->active: %v", err)
	}
	if err := svc.UpdateStatus(ctx, s.ID, domain.SessionCompleted); err != nil {
		t.Fatalf("active->completed: %v", err)
	}
	// повтор того же перехода идемпотентен (ретраи после частичного сбоя)
	if err := svc.UpdateStatus(ctx, s.ID, domain.SessionCompleted); err != nil {
		t.Fatalf("repeat completed: %v", err)
	}
	// reopen: completed -> active
	if err := svc.UpdateStatus(ctx, s.ID, domain.SessionActive); err != nil {
		t.Fatalf("reopen: %v", err)
	}
}

type memRoleStore struct {
	mu    sync.Mutex
	roles map[domain.RoleName]domain.RoleDefinition
}

func newMemRoleStore() *memRoleStore {
	return &memRoleStore{roles: make(map[domain.RoleName]domain.RoleDefinition)}
}

func (m *memRoleStore) List(ctx context.Context) ([]domain.RoleDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.RoleDefinition, 0, len(m.roles))
	for _, d := range m.roles {
		out = append(out, d)
	}
	return out, nil
}

func (m *memRoleStore) Upsert(ctx context.Context, def domain.RoleDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[def.Name] = def
	return nil
}

func (m *memRoleStore) Delete(ctx context.Context, name domain.RoleName) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[name]; !ok {
		return domain.ErrRoleNotFound
	}
	delete(m.roles, name)
	return nil
}

func TestRoleServiceBuiltInsProtected(t *testing.T) {
	engine := permission.NewEngine()
	svc := NewRoleService(newMemRoleStore(), engine)
	ctx := context.Background()

	if err := svc.Save(ctx, domain.RoleDefinition{Name: domain.RoleAdmin}); !errors.Is(err, domain.ErrBuiltInRole) {
		t.Fatalf("saving built-in: err = %v, want ErrBuiltInRole", err)
	}

	// удаление встроенной роли — no-op, не ошибка
	if err := svc.Delete(ctx, domain.RoleSuperAdmin); err != nil {
		t.Fatalf("delete built-in: %v", err)
	}
	if !engine.Evaluate(domain.RoleSuperAdmin, domain.ModuleSettings, permission.ActionWrite) {
		t.Fatal("built-in role must survive delete attempt")
	}
}

func TestRoleServiceCustomRoundtrip(t *testing.T) {
	engine := permission.NewEngine()
	svc := NewRoleService(newMemRoleStore(), engine)
	ctx := context.Background()

	def := domain.RoleDefinition{
		Name: "sommelier",
		Grants: map[domain.Module]map[string]domain.Capability{
			domain.ModuleWines: {permission.ActionRead: domain.CapabilityRead},
		},
	}
	if err := svc.Save(ctx, def); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !engine.Evaluate("sommelier", domain.ModuleWines, permission.ActionRead) {
		t.Fatal("saved role must evaluate in engine")
	}

	roles, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// 3 встроенных + 1 кастомная
	if len(roles) != 4 {
		t.Fatalf("list returned %d roles, want 4", len(roles))
	}

	if err := svc.Delete(ctx, "sommelier"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if engine.Evaluate("sommelier", domain.ModuleWines, permission.ActionRead) {
		t.Fatal("deleted role must be denied")
	}
}
