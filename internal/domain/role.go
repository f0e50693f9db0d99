package domain

type RoleName string

const (
	RoleStaff      RoleName = "staff"
	RoleAdmin      RoleName = "admin"
	RoleSuperAdmin RoleName = "super_admin"
)

func (r RoleName) BuiltIn() bool {
	switch r {
	case RoleStaff, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Module — закрытый набор разделов приложения, по которым считаются права.
type Module string

const (
	ModuleInventorySession Module = "inventory_session"
	ModuleWines            Module = "wines"
	ModuleReports          Module = "reports"
	ModuleSettings         Module = "settings"
	ModuleUsers            Module = "users"
)

// Capability — разрешённый уровень действия внутри модуля.
type Capability string

const (
	CapabilityNone  Capability = "none"
	CapabilityRead  Capability = "read"
	CapabilityWrite Capability = "write"
	CapabilityAdmin Capability = "admin"
)

// RoleDefinition — конфигурационные данные роли. Для кастомных ролей
// Grants задаёт (module, action) -> capability; отсутствие пары = запрет.
type RoleDefinition struct {
	Name    RoleName                         `db:"name"`
	BuiltIn bool                             `db:"built_in"`
	Grants  map[Module]map[string]Capability `db:"grants"`
}
