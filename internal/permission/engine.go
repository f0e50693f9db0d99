package permission

import (
	"sync"

	"github.com/vinocount/session-service/internal/domain"
)

// Уровни действий внутри модуля.
const (
	ActionRead    = "read"
	ActionWrite   = "write"
	ActionCreate  = "create"
	ActionApprove = "approve"
	ActionFlag    = "flag"
	ActionReopen  = "reopen"
)

// restrictedModules — модули, закрытые для staff целиком.
var restrictedModules = map[domain.Module]struct{}{
	domain.ModuleSettings: {},
	domain.ModuleUsers:    {},
}

// adminOnlyActions — действия, требующие admin независимо от модуля.
var adminOnlyActions = map[string]struct{}{
	ActionFlag:   {},
	ActionReopen: {},
}

// Engine — вычисление прав. Встроенные роли зашиты политикой и не зависят от
// состояния; кастомные читаются из карты под RWMutex, поэтому Evaluate можно
// звать из любой горутины.
type Engine struct {
	mu     sync.RWMutex
	custom map[domain.RoleName]domain.RoleDefinition
}

func NewEngine() *Engine {
	return &Engine{custom: make(map[domain.RoleName]domain.RoleDefinition)}
}

// Evaluate тотальна: неизвестная роль или модуль — это deny, не ошибка.
func (e *Engine) Evaluate(role domain.RoleName, module domain.Module, action string) bool {
	switch role {
	case domain.RoleAdmin, domain.RoleSuperAdmin:
		return true
	case domain.RoleStaff:
		if _, ok := restrictedModules[module]; ok {
			return false
		}
		if _, ok := adminOnlyActions[action]; ok {
			return false
		}
		return true
	}

	e.mu.RLock()
	def, ok := e.custom[role]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	grants, ok := def.Grants[module]
	if !ok {
		return false
	}
	level, ok := grants[action]
	if !ok {
		return false
	}
	return level != domain.CapabilityNone
}

// SetCustom добавляет или обновляет кастомную роль. Попытка переопределить
// встроенную роль отклоняется: базовая политика не может быть понижена.
func (e *Engine) SetCustom(def domain.RoleDefinition) error {
	if def.Name.BuiltIn() {
		return domain.ErrBuiltInRole
	}
	e.mu.Lock()
	e.custom[def.Name] = def
	e.mu.Unlock()
	return nil
}

// RemoveCustom удаляет кастомную роль; для встроенной — no-op без ошибки.
func (e *Engine) RemoveCustom(name domain.RoleName) {
	if name.BuiltIn() {
		return
	}
	e.mu.Lock()
	delete(e.custom, name)
	e.mu.Unlock()
}

// Load массово загружает определения (например, из БД при старте);
// встроенные имена молча пропускаются.
func (e *Engine) Load(defs []domain.RoleDefinition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, def := range defs {
		if def.Name.BuiltIn() {
			continue
		}
		e.custom[def.Name] = def
	}
}
