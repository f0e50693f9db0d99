package postgres

import (
	"context"

	"github.com/vinocount/session-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository — append-only: update и delete здесь не существуют намеренно.
type AuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append пишет запись сразу в БД, без буферизации: потеря записи при падении
// процесса недопустима. Timestamp ставит сервер БД, а не клиент, чтобы порядок
// журнала не зависел от часов устройств.
func (r *AuditRepository) Append(ctx context.Context, e *domain.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO session_audit (id, session_id, action, actor_id, actor_name, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.SessionID, e.Action, e.ActorID, e.ActorName, e.Note)

	return row.Scan(&e.CreatedAt)
}

// ForSession возвращает журнал сессии по возрастанию времени; id рвёт ничьи.
// Пустая сессия — пустой срез, не ошибка.
func (r *AuditRepository) ForSession(ctx context.Context, sessionID string) ([]domain.AuditEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, action, actor_id, actor_name, note, created_at
		FROM session_audit
		WHERE session_id=$1
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AuditEntry, 0, 16)
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Action, &e.ActorID, &e.ActorName, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	return out, rows.Err()
}
