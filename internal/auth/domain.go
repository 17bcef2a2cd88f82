package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the authenticated account returned on login.
type User struct {
	ID        int64  `json:"user_id"`
	Email     string `json:"email"`
	RoleID    int64  `json:"role_id"`
	CompanyID int64  `json:"company_id"`
}

// Credentials is what the login flow reads from the user store.
type Credentials struct {
	ID           int64
	Email        string
	PasswordHash string
	RoleID       int64
	CompanyID    int64
	IsActive     bool
}

// LoginInput is the login request body.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResult is returned after a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// Claims are the JWT claims carried by access tokens.
type Claims struct {
	UserID    int64 `json:"user_id"`
	RoleID    int64 `json:"role_id"`
	CompanyID int64 `json:"company_id"`
	jwt.RegisteredClaims
}
