package rbac

// Role identifies the permission class of the acting principal.
type Role int64

const (
	RoleSuperAdmin Role = 1
	RoleAdmin      Role = 2
	RoleExecutive  Role = 3
	RoleValidator  Role = 4
	RoleDispatcher Role = 5
	RoleConsultant Role = 6
)

var roleNames = map[Role]string{
	RoleSuperAdmin: "SuperAdmin",
	RoleAdmin:      "Administrador",
	RoleExecutive:  "Ejecutivo",
	RoleValidator:  "Validador",
	RoleDispatcher: "Despachador",
	RoleConsultant: "Consultor",
}

// String returns the display name of the role.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "Desconocido"
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// Ownership narrows visibility to records tied to the principal.
type Ownership string

const (
	OwnershipNone      Ownership = ""
	OwnershipCompany   Ownership = "company"
	OwnershipExecutive Ownership = "executive"
)

// Visibility is a read filter: an ownership constraint and/or a status set.
// An empty Visibility means unrestricted.
type Visibility struct {
	Ownership Ownership `yaml:"ownership" json:"ownership,omitempty"`
	Statuses  []int64   `yaml:"statuses" json:"statuses,omitempty"`
}

// Unrestricted reports whether the filter lets every record through.
func (v Visibility) Unrestricted() bool {
	return v.Ownership == OwnershipNone && len(v.Statuses) == 0
}

// Capability is the policy record for one role.
type Capability struct {
	RoleID         int64      `yaml:"id"`
	Name           string     `yaml:"name"`
	CanCreate      bool       `yaml:"can_create"`
	CanPrioritize  bool       `yaml:"can_prioritize"`
	Visibility     Visibility `yaml:"visibility"`
	Search         Visibility `yaml:"search"`
	TargetStatuses []int64    `yaml:"target_statuses"`
	FieldGroups    []string   `yaml:"field_groups"`
	ExcludeFields  []string   `yaml:"exclude_fields"`
	StatusOrder    []int64    `yaml:"status_order"`
}
