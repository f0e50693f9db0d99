package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinocount/session-service/internal/domain"
	"github.com/vinocount/session-service/internal/permission"
)

type roleStore interface {
	List(ctx context.Context) ([]domain.RoleDefinition, error)
	Upsert(ctx context.Context, def domain.RoleDefinition) error
	Delete(ctx context.Context, name domain.RoleName) error
}

// RoleService держит персистентные определения кастомных ролей и синхронизирует
// их с движком прав. Встроенные роли живут в коде и отсюда не редактируются.
type RoleService struct {
	repo   roleStore
	engine *permission.Engine
}

func NewRoleService(repo roleStore, engine *permission.Engine) *RoleService {
	return &RoleService{repo: repo, engine: engine}
}

// Load подтягивает кастомные роли из БД в движок; зовётся на старте.
func (s *RoleService) Load(ctx context.Context) error {
	defs, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("roleStore.List: %w", err)
	}
	s.engine.Load(defs)
	return nil
}

// List — встроенные роли плюс кастомные из БД.
func (s *RoleService) List(ctx context.Context) ([]domain.RoleDefinition, error) {
	custom, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []domain.RoleDefinition{
		{Name: domain.RoleStaff, BuiltIn: true},
		{Name: domain.RoleAdmin, BuiltIn: true},
		{Name: domain.RoleSuperAdmin, BuiltIn: true},
	}
	return append(out, custom...), nil
}

// Save создаёт или обновляет кастомную роль.
func (s *RoleService) Save(ctx context.Context, def domain.RoleDefinition) error {
	name := domain.RoleName(strings.TrimSpace(string(def.Name)))
	if name == "" {
		return &domain.ValidationError{Field: "name", Msg: "required"}
	}
	def.Name = name
	if name.BuiltIn() {
		return domain.ErrBuiltInRole
	}
	if def.Grants == nil {
		def.Grants = map[domain.Module]map[string]domain.Capability{}
	}

	if err := s.repo.Upsert(ctx, def); err != nil {
		return fmt.Errorf("roleStore.Upsert: %w", err)
	}
	return s.engine.SetCustom(def)
}

// Delete удаляет кастомную роль; попытка удалить встроенную — no-op без ошибки.
func (s *RoleService) Delete(ctx context.Context, name domain.RoleName) error {
	if name.BuiltIn() {
		return nil
	}
	if err := s.repo.Delete(ctx, name); err != nil {
		return err
	}
	s.engine.RemoveCustom(name)
	return nil
}
