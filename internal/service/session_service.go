package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinocount/session-service/internal/domain"
)

type sessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	List(ctx context.Context, limit int, cursor string) ([]domain.Session, string, error)
	UpdateStatus(ctx context.Context, id string, to domain.SessionStatus) error
}

type SessionService struct {
	repo sessionStore
}

func NewSessionService(repo sessionStore) *SessionService {
	return &SessionService{repo: repo}
}

// Create заводит сессию пересчёта в статусе draft.
func (s *SessionService) Create(ctx context.Context, title string, expectedItems int64, ownerID string) (*domain.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, &domain.ValidationError{Field: "title", Msg: "required"}
	}
	if expectedItems < 0 {
		expectedItems = 0
	}

	session := &domain.Session{
		Title:         title,
		Status:        domain.SessionDraft,
		ExpectedItems: expectedItems,
		OwnerID:       ownerID,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("sessionStore.Create: %w", err)
	}
	return session, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (*domain.Session, error) {
	return s.repo.Get(ctx, id)
}

// List возвращает сессии с курсорной пагинацией.
func (s *SessionService) List(ctx context.Context, limit int, cursor string) ([]domain.Session, string, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	return s.repo.List(ctx, limit, cursor)
}

// UpdateStatus применяет переход статуса; валидность перехода проверяет стор
// под блокировкой строки.
func (s *SessionService) UpdateStatus(ctx context.Context, id string, to domain.SessionStatus) error {
	if !to.Valid() {
		return &domain.ValidationError{Field: "status", Msg: "unknown status"}
	}
	return s.repo.UpdateStatus(ctx, id, to)
}
