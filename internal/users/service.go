package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/salesdesk/salesdesk/internal/rbac"
	"github.com/salesdesk/salesdesk/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, companyID *int64, limit, offset int) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, in CreateInput, passwordHash string) (int64, error)
	UpdateUser(ctx context.Context, id int64, updates map[string]any) error
	FindByEmail(ctx context.Context, email string) (Credentials, error)
	Contact(ctx context.Context, id int64) (Contact, error)
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	validate *validator.Validate
	cost     int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, validate: shared.NewValidator(), cost: bcrypt.DefaultCost}
}

// SetHashCost overrides the bcrypt cost.
func (s *Service) SetHashCost(cost int) {
	s.cost = cost
}

// companyScope returns the company an actor is confined to, or nil.
func companyScope(p *shared.Principal) (*int64, error) {
	if p == nil {
		return nil, shared.ErrUnauthorized
	}
	switch rbac.Role(p.RoleID) {
	case rbac.RoleSuperAdmin:
		return nil, nil
	case rbac.RoleAdmin:
		id := p.CompanyID
		return &id, nil
	}
	return nil, fmt.Errorf("%w: role %s may not manage users", shared.ErrForbidden, rbac.Role(p.RoleID))
}

// ListUsers returns a page of users visible to p.
func (s *Service) ListUsers(ctx context.Context, p *shared.Principal, page, size int) (ListResult, error) {
	company, err := companyScope(p)
	if err != nil {
		return ListResult{}, err
	}
	page, size = shared.NormalizePage(page, size)
	items, total, err := s.repo.ListUsers(ctx, company, size, shared.Offset(page, size))
	if err != nil {
		return ListResult{}, err
	}
	pg := shared.NewPagination(page, size, total)
	return ListResult{Items: items, TotalCount: pg.Total, TotalPages: pg.TotalPages, Page: pg.Page, PageSize: pg.PerPage}, nil
}

// GetUser returns one user visible to p.
func (s *Service) GetUser(ctx context.Context, p *shared.Principal, id int64) (User, error) {
	company, err := companyScope(p)
	if err != nil {
		return User{}, err
	}
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if company != nil && u.CompanyID != *company {
		return User{}, fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
	}
	return u, nil
}

// CreateUser registers a user. Administrators create users in their own
// company and cannot mint SuperAdmins.
func (s *Service) CreateUser(ctx context.Context, p *shared.Principal, in CreateInput) (User, error) {
	company, err := companyScope(p)
	if err != nil {
		return User{}, err
	}
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return User{}, err
	}
	if company != nil {
		if rbac.Role(in.RoleID) == rbac.RoleSuperAdmin {
			return User{}, fmt.Errorf("%w: administrators cannot create superadmins", shared.ErrForbidden)
		}
		in.CompanyID = *company
	}
	if in.CompanyID <= 0 {
		return User{}, fmt.Errorf("%w: company_id required", shared.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, err
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	id, err := s.repo.CreateUser(ctx, in, string(hash))
	if err != nil {
		return User{}, err
	}
	return s.repo.GetUser(ctx, id)
}

// UpdateUser applies a partial update.
func (s *Service) UpdateUser(ctx context.Context, p *shared.Principal, id int64, in UpdateInput) (User, error) {
	if _, err := s.GetUser(ctx, p, id); err != nil {
		return User{}, err
	}
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return User{}, err
	}
	company, _ := companyScope(p)
	updates := map[string]any{}
	if in.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*in.LastName)
	}
	if in.Email != nil {
		updates["email"] = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.RoleID != nil {
		if company != nil && rbac.Role(*in.RoleID) == rbac.RoleSuperAdmin {
			return User{}, fmt.Errorf("%w: administrators cannot grant superadmin", shared.ErrForbidden)
		}
		updates["role_id"] = *in.RoleID
	}
	if in.CompanyID != nil {
		if company != nil && *in.CompanyID != *company {
			return User{}, fmt.Errorf("%w: administrators cannot move users between companies", shared.ErrForbidden)
		}
		updates["company_id"] = *in.CompanyID
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if in.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), s.cost)
		if err != nil {
			return User{}, err
		}
		updates["password_hash"] = string(hash)
	}
	if err := s.repo.UpdateUser(ctx, id, updates); err != nil {
		return User{}, err
	}
	return s.repo.GetUser(ctx, id)
}

// Contact resolves the notification address of a user.
func (s *Service) Contact(ctx context.Context, id int64) (Contact, error) {
	return s.repo.Contact(ctx, id)
}

// Credentials returns login data for email.
func (s *Service) Credentials(ctx context.Context, email string) (Credentials, error) {
	return s.repo.FindByEmail(ctx, email)
}
