package users

import "time"

// User represents a staff account.
type User struct {
	ID          int64     `json:"user_id" db:"user_id"`
	FirstName   string    `json:"first_name" db:"first_name"`
	LastName    string    `json:"last_name" db:"last_name"`
	Email       string    `json:"email" db:"email"`
	Phone       string    `json:"phone" db:"phone"`
	RoleID      int64     `json:"role_id" db:"role_id"`
	RoleName    string    `json:"role_name"`
	CompanyID   int64     `json:"company_id" db:"company_id"`
	CompanyName string    `json:"company_name"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Credentials is the login view of a user.
type Credentials struct {
	ID           int64
	Email        string
	PasswordHash string
	RoleID       int64
	CompanyID    int64
	IsActive     bool
}

// Contact is what notifications need to reach a user.
type Contact struct {
	ID    int64  `json:"user_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CreateInput creates a user.
type CreateInput struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=150"`
	Phone     string `json:"phone" validate:"omitempty,max=20"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	RoleID    int64  `json:"role_id" validate:"required,gte=1,lte=6"`
	CompanyID int64  `json:"company_id" validate:"omitempty,gt=0"`
}

// UpdateInput changes a user. Nil fields are left untouched.
type UpdateInput struct {
	FirstName *string `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,min=1,max=100"`
	Email     *string `json:"email" validate:"omitempty,email,max=150"`
	Phone     *string `json:"phone" validate:"omitempty,max=20"`
	Password  *string `json:"password" validate:"omitempty,min=8,max=72"`
	RoleID    *int64  `json:"role_id" validate:"omitempty,gte=1,lte=6"`
	CompanyID *int64  `json:"company_id" validate:"omitempty,gt=0"`
	IsActive  *bool   `json:"is_active"`
}

// ListResult is a page of users.
type ListResult struct {
	Items      []User `json:"users"`
	TotalCount int    `json:"total_count"`
	TotalPages int    `json:"total_pages"`
	Page       int    `json:"current_page"`
	PageSize   int    `json:"page_size"`
}
