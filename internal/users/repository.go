package users

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salesdesk/salesdesk/internal/platform/db"
	"github.com/salesdesk/salesdesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `u.user_id, u.first_name, u.last_name, u.email, COALESCE(u.phone, ''), u.role_id,
	COALESCE(r.role_name, ''), u.company_id, COALESCE(c.company_name, ''), u.is_active, u.created_at`

const userJoins = `
	FROM users u
	LEFT JOIN roles r ON r.role_id = u.role_id
	LEFT JOIN companies c ON c.company_id = u.company_id`

func scanUser(row pgx.Row, u *User) error {
	return row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Phone, &u.RoleID,
		&u.RoleName, &u.CompanyID, &u.CompanyName, &u.IsActive, &u.CreatedAt)
}

// ListUsers returns a page of users, optionally confined to one company.
func (r *Repository) ListUsers(ctx context.Context, companyID *int64, limit, offset int) ([]User, int, error) {
	where := ""
	args := []any{}
	if companyID != nil {
		where = " WHERE u.company_id = $1"
		args = append(args, *companyID)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+userJoins+where, args...).Scan(&total); err != nil {
		return nil, 0, db.TranslateError(err)
	}
	query := fmt.Sprintf(`SELECT %s%s%s ORDER BY u.last_name, u.first_name, u.user_id LIMIT $%d OFFSET $%d`,
		userColumns, userJoins, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, db.TranslateError(err)
	}
	defer rows.Close()
	users := []User{}
	for rows.Next() {
		var u User
		if err := scanUser(rows, &u); err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, db.TranslateError(rows.Err())
}

// GetUser fetches one user.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	if err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+userJoins+` WHERE u.user_id = $1`, id), &u); err != nil {
		return User{}, userNotFound(id, err)
	}
	return u, nil
}

// CreateUser inserts a user with an already hashed password.
func (r *Repository) CreateUser(ctx context.Context, in CreateInput, passwordHash string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO users (first_name, last_name, email, phone, password_hash, role_id, company_id, is_active)
		VALUES ($1, $2, lower($3), NULLIF($4, ''), $5, $6, $7, TRUE) RETURNING user_id`,
		strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName), strings.TrimSpace(in.Email),
		strings.TrimSpace(in.Phone), passwordHash, in.RoleID, in.CompanyID).Scan(&id)
	return id, db.TranslateError(err)
}

// UpdateUser applies column updates.
func (r *Repository) UpdateUser(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	cols := make([]string, 0, len(updates))
	for col := range updates {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, updates[col])
	}
	args = append(args, id)
	tag, err := r.pool.Exec(ctx, fmt.Sprintf("UPDATE users SET %s WHERE user_id = $%d",
		strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return db.TranslateError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
	}
	return nil
}

// FindByEmail fetches login credentials.
func (r *Repository) FindByEmail(ctx context.Context, email string) (Credentials, error) {
	var c Credentials
	err := r.pool.QueryRow(ctx, `SELECT user_id, email, password_hash, role_id, company_id, is_active
		FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email)).
		Scan(&c.ID, &c.Email, &c.PasswordHash, &c.RoleID, &c.CompanyID, &c.IsActive)
	if err != nil {
		return Credentials{}, db.TranslateError(err)
	}
	return c, nil
}

// Contact fetches the notification address of a user.
func (r *Repository) Contact(ctx context.Context, id int64) (Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `SELECT user_id, first_name || ' ' || last_name, email
		FROM users WHERE user_id = $1`, id).Scan(&c.ID, &c.Name, &c.Email)
	if err != nil {
		return Contact{}, userNotFound(id, err)
	}
	return c, nil
}

func userNotFound(id int64, err error) error {
	err = db.TranslateError(err)
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
	}
	return err
}
