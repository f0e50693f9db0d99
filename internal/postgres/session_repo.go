package postgres

import (
	"context"
	"errors"

	"github.com/vinocount/session-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	query := `
		INSERT INTO counting_sessions (title, status, expected_items, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query, s.Title, s.Status, s.ExpectedItems, s.OwnerID).
		Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return err
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	var s domain.Session
	query := `SELECT id, title, status, expected_items, owner_id, created_at
		FROM counting_sessions WHERE id=$1`
	err := r.db.QueryRow(ctx, query, id).
		Scan(&s.ID, &s.Title, &s.Status, &s.ExpectedItems, &s.OwnerID, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) List(ctx context.Context, limit int, cursorStr string) ([]domain.Session, string, error) {
	cur, err := DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}

	query := `
		SELECT id, title, status, expected_items, owner_id, created_at
		FROM counting_sessions
		WHERE ($1::timestamptz IS NULL OR created_at < $1
		       OR (created_at = $1 AND id < $2))
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	var createdAt any
	var id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := r.db.Query(ctx, query, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.ID, &s.Title, &s.Status, &s.ExpectedItems, &s.OwnerID, &s.CreatedAt); err != nil {
			return nil, "", err
		}
		sessions = append(sessions, s)
	}

	var nextCursor string
	if len(sessions) == limit {
		last := sessions[len(sessions)-1]
		cur := Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
		nextCursor, _ = EncodeCursor(cur)
	}

	return sessions, nextCursor, nil
}

// UpdateStatus — переход статуса под блокировкой строки, чтобы два параллельных
// действия по одной сессии не применили конфликтующие переходы. Повторное
// применение того же перехода идемпотентно: если статус уже целевой, это успех,
// а не ошибка (важно для ретраев после частичного сбоя действия).
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, to domain.SessionStatus) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current domain.SessionStatus
	err = tx.QueryRow(ctx, `SELECT status FROM counting_sessions WHERE id=$1 FOR UPDATE`, id).
		Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrSessionNotFound
		}
		return err
	}

	if current == to {
		return tx.Commit(ctx)
	}
	if !current.CanTransition(to) {
		return domain.ErrInvalidTransition
	}

	if _, err := tx.Exec(ctx,
		`UPDATE counting_sessions SET status=$2 WHERE id=$1`, id, to); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
