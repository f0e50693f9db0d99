package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinocount/session-service/internal/domain"
)

type auditStore interface {
	Append(ctx context.Context, e *domain.AuditEntry) error
	ForSession(ctx context.Context, sessionID string) ([]domain.AuditEntry, error)
}

// AuditService — журнал действий. Только append и чтение: записи неизменяемы.
type AuditService struct {
	store auditStore
}

func NewAuditService(store auditStore) *AuditService {
	return &AuditService{store: store}
}

// Append валидирует только привязку (сессия + актор); по содержимому записи
// не отклоняются. Id и timestamp проставляются при записи.
func (s *AuditService) Append(ctx context.Context, e domain.AuditEntry) (*domain.AuditEntry, error) {
	if strings.TrimSpace(e.SessionID) == "" {
		return nil, &domain.ValidationError{Field: "session_id", Msg: "required"}
	}
	if strings.TrimSpace(e.ActorID) == "" {
		return nil, &domain.ValidationError{Field: "actor_id", Msg: "required"}
	}

	if err := s.store.Append(ctx, &e); err != nil {
		return nil, fmt.Errorf("auditStore.Append: %w", err)
	}
	return &e, nil
}

// ForSession возвращает журнал по возрастанию времени; пусто — это пустой срез.
func (s *AuditService) ForSession(ctx context.Context, sessionID string) ([]domain.AuditEntry, error) {
	return s.store.ForSession(ctx, sessionID)
}
