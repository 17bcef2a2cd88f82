package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/salesdesk/salesdesk/internal/shared"
	_ "github.com/salesdesk/salesdesk/testing"
)

type memRepo struct {
	users  map[int64]User
	hashes map[int64]string
	nextID int64
}

func newMemRepo(seed ...User) *memRepo {
	m := &memRepo{users: map[int64]User{}, hashes: map[int64]string{}, nextID: 100}
	for _, u := range seed {
		m.users[u.ID] = u
	}
	return m
}

func (m *memRepo) ListUsers(_ context.Context, companyID *int64, limit, offset int) ([]User, int, error) {
	var out []User
	for _, u := range m.users {
		if companyID == nil || u.CompanyID == *companyID {
			out = append(out, u)
		}
	}
	total := len(out)
	if offset >= len(out) {
		return []User{}, total, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], total, nil
}

func (m *memRepo) GetUser(_ context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *memRepo) CreateUser(_ context.Context, in CreateInput, hash string) (int64, error) {
	for _, u := range m.users {
		if u.Email == in.Email {
			return 0, shared.ErrConflict
		}
	}
	m.nextID++
	m.users[m.nextID] = User{ID: m.nextID, FirstName: in.FirstName, LastName: in.LastName, Email: in.Email,
		RoleID: in.RoleID, CompanyID: in.CompanyID, IsActive: true}
	m.hashes[m.nextID] = hash
	return m.nextID, nil
}

func (m *memRepo) UpdateUser(_ context.Context, id int64, updates map[string]any) error {
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	if v, ok := updates["first_name"].(string); ok {
		u.FirstName = v
	}
	if v, ok := updates["is_active"].(bool); ok {
		u.IsActive = v
	}
	if v, ok := updates["password_hash"].(string); ok {
		m.hashes[id] = v
	}
	m.users[id] = u
	return nil
}

func (m *memRepo) FindByEmail(_ context.Context, email string) (Credentials, error) {
	for id, u := range m.users {
		if u.Email == email {
			return Credentials{ID: id, Email: email, PasswordHash: m.hashes[id], RoleID: u.RoleID, CompanyID: u.CompanyID, IsActive: u.IsActive}, nil
		}
	}
	return Credentials{}, shared.ErrNotFound
}

func (m *memRepo) Contact(_ context.Context, id int64) (Contact, error) {
	u, ok := m.users[id]
	if !ok {
		return Contact{}, shared.ErrNotFound
	}
	return Contact{ID: id, Name: u.FirstName + " " + u.LastName, Email: u.Email}, nil
}

var (
	superAdmin = &shared.Principal{UserID: 1, RoleID: 1, CompanyID: 1}
	adminAcme  = &shared.Principal{UserID: 2, RoleID: 2, CompanyID: 1}
	executive  = &shared.Principal{UserID: 3, RoleID: 3, CompanyID: 1}
)

func newTestService(repo RepositoryPort) *Service {
	svc := NewService(repo)
	svc.SetHashCost(bcrypt.MinCost)
	return svc
}

func TestAdminConfinedToOwnCompany(t *testing.T) {
	repo := newMemRepo(
		User{ID: 10, Email: "a@acme.cl", CompanyID: 1},
		User{ID: 11, Email: "b@beta.cl", CompanyID: 2},
	)
	svc := newTestService(repo)
	ctx := context.Background()

	list, err := svc.ListUsers(ctx, adminAcme, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, list.TotalCount)

	_, err = svc.GetUser(ctx, adminAcme, 11)
	require.ErrorIs(t, err, shared.ErrNotFound)

	all, err := svc.ListUsers(ctx, superAdmin, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 2, all.TotalCount)
}

func TestNonAdminsCannotManageUsers(t *testing.T) {
	svc := newTestService(newMemRepo())
	_, err := svc.ListUsers(context.Background(), executive, 1, 10)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.ListUsers(context.Background(), nil, 1, 10)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestCreateUserHashesPasswordAndPinsCompany(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)

	user, err := svc.CreateUser(context.Background(), adminAcme, CreateInput{
		FirstName: "Eva", LastName: "Rojas", Email: "Eva@Acme.cl", Password: "s3cretpass", RoleID: 3, CompanyID: 9,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), user.CompanyID)
	require.Equal(t, "eva@acme.cl", user.Email)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[user.ID]), []byte("s3cretpass")))
}

func TestAdminCannotCreateSuperAdmin(t *testing.T) {
	svc := newTestService(newMemRepo())
	_, err := svc.CreateUser(context.Background(), adminAcme, CreateInput{
		FirstName: "X", LastName: "Y", Email: "x@y.cl", Password: "s3cretpass", RoleID: 1,
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestCreateUserValidates(t *testing.T) {
	svc := newTestService(newMemRepo())
	_, err := svc.CreateUser(context.Background(), superAdmin, CreateInput{Email: "nope", Password: "short", RoleID: 3, CompanyID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateUserDeactivates(t *testing.T) {
	repo := newMemRepo(User{ID: 10, Email: "a@acme.cl", CompanyID: 1, IsActive: true})
	svc := newTestService(repo)
	off := false

	user, err := svc.UpdateUser(context.Background(), adminAcme, 10, UpdateInput{IsActive: &off})
	require.NoError(t, err)
	require.False(t, user.IsActive)
}

func TestAdminCannotMoveUserAcrossCompanies(t *testing.T) {
	repo := newMemRepo(User{ID: 10, Email: "a@acme.cl", CompanyID: 1})
	svc := newTestService(repo)
	other := int64(2)

	_, err := svc.UpdateUser(context.Background(), adminAcme, 10, UpdateInput{CompanyID: &other})
	require.ErrorIs(t, err, shared.ErrForbidden)
}
