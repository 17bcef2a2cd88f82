package roles

// Role is a row of the roles reference table.
type Role struct {
	ID          int64  `json:"role_id" db:"role_id"`
	Name        string `json:"role_name" db:"role_name"`
	Description string `json:"description" db:"description"`
}
