package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vinocount/session-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoleRepository хранит только кастомные роли; встроенные живут в коде движка.
type RoleRepository struct {
	db *pgxpool.Pool
}

func NewRoleRepository(db *pgxpool.Pool) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) List(ctx context.Context) ([]domain.RoleDefinition, error) {
	rows, err := r.db.Query(ctx, `SELECT name, grants FROM custom_roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RoleDefinition
	for rows.Next() {
		var (
			def    domain.RoleDefinition
			grants []byte
		)
		if err := rows.Scan(&def.Name, &grants); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(grants, &def.Grants); err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func (r *RoleRepository) Upsert(ctx context.Context, def domain.RoleDefinition) error {
	grants, err := json.Marshal(def.Grants)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO custom_roles (name, grants)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET grants = EXCLUDED.grants
	`, def.Name, grants)
	return err
}

func (r *RoleRepository) Delete(ctx context.Context, name domain.RoleName) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM custom_roles WHERE name=$1`, name)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrRoleNotFound
	}
	return nil
}

func (r *RoleRepository) Get(ctx context.Context, name domain.RoleName) (*domain.RoleDefinition, error) {
	var (
		def    domain.RoleDefinition
		grants []byte
	)
	err := r.db.QueryRow(ctx, `SELECT name, grants FROM custom_roles WHERE name=$1`, name).
		Scan(&def.Name, &grants)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(grants, &def.Grants); err != nil {
		return nil, err
	}
	return &def, nil
}
