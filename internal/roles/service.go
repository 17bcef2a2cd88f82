package roles

import (
	"context"

	"github.com/salesdesk/salesdesk/internal/rbac"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
}

// Service handles role business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListRoles returns all roles. Without a repository the built-in role set is returned.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	if s.repo == nil {
		return builtinRoles(), nil
	}
	return s.repo.ListRoles(ctx)
}

func builtinRoles() []Role {
	out := make([]Role, 0, 6)
	for id := rbac.RoleSuperAdmin; id <= rbac.RoleConsultant; id++ {
		out = append(out, Role{ID: int64(id), Name: id.String()})
	}
	return out
}
