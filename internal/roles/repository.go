package roles

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salesdesk/salesdesk/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns all roles.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_id, role_name, COALESCE(description, '') FROM roles ORDER BY role_id`)
	if err != nil {
		return nil, db.TranslateError(err)
	}
	defer rows.Close()

	roles := []Role{}
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, db.TranslateError(rows.Err())
}
