package rbac

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/salesdesk/salesdesk/internal/shared"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	policy, err := DefaultPolicy()
	require.NoError(t, err)
	return NewResolver(policy)
}

func TestResolveRequiresPrincipal(t *testing.T) {
	r := newTestResolver(t)
	_, err := r.Resolve(nil)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = r.Resolve(&shared.Principal{UserID: 1, RoleID: 42})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestResolveTargetStatusesPerRole(t *testing.T) {
	r := newTestResolver(t)
	cases := map[Role][]int64{
		RoleSuperAdmin: {1, 2, 3, 4, 5, 6, 7},
		RoleAdmin:      {1, 2, 3, 4, 5, 6, 7},
		RoleExecutive:  {1},
		RoleValidator:  {2, 3, 4, 7},
		RoleDispatcher: {5, 6, 7},
		RoleConsultant: {},
	}
	for role, want := range cases {
		scope, err := r.Resolve(&shared.Principal{UserID: 9, RoleID: int64(role), CompanyID: 3})
		require.NoError(t, err)
		require.Equal(t, want, scope.AllowedTargetStatuses(), role.String())
	}
}

func TestResolveVisibility(t *testing.T) {
	r := newTestResolver(t)

	admin, err := r.Resolve(&shared.Principal{UserID: 2, RoleID: int64(RoleAdmin), CompanyID: 7})
	require.NoError(t, err)
	require.Equal(t, OwnershipCompany, admin.Read.Ownership)
	require.True(t, admin.Owns(7, nil))
	require.False(t, admin.Owns(8, nil))

	exec, err := r.Resolve(&shared.Principal{UserID: 5, RoleID: int64(RoleExecutive), CompanyID: 7})
	require.NoError(t, err)
	mine, other := int64(5), int64(6)
	require.True(t, exec.Owns(1, &mine))
	require.False(t, exec.Owns(7, &other))
	require.False(t, exec.Owns(7, nil))

	validator, err := r.Resolve(&shared.Principal{UserID: 4, RoleID: int64(RoleValidator)})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3}, validator.Read.Statuses)
	require.True(t, validator.Sees(1, nil, 3))
	require.True(t, validator.Sees(1, nil, 2), "search filter admits validated sales")
	require.False(t, validator.Sees(1, nil, 5))
	require.True(t, exec.Sees(9, &mine, 6))
	require.False(t, exec.Sees(9, &other, 1))

	super, err := r.Resolve(&shared.Principal{UserID: 1, RoleID: int64(RoleSuperAdmin)})
	require.NoError(t, err)
	require.True(t, super.Read.Unrestricted())
}

func TestFilterFieldsDropsOutsideWhitelist(t *testing.T) {
	r := newTestResolver(t)
	dispatcher, err := r.Resolve(&shared.Principal{UserID: 5, RoleID: int64(RoleDispatcher)})
	require.NoError(t, err)

	got := dispatcher.FilterFields(map[string]any{
		"service_id":        "SRV-1",
		"sale_status_id":    int64(6),
		"client_first_name": "Ana",
		"company_id":        int64(2),
	})
	require.Equal(t, map[string]any{"service_id": "SRV-1", "sale_status_id": int64(6)}, got)

	admin, err := r.Resolve(&shared.Principal{UserID: 2, RoleID: int64(RoleAdmin), CompanyID: 1})
	require.NoError(t, err)
	require.False(t, admin.AllowsField("company_id"))
	require.True(t, admin.AllowsField("sales_channel_id"))

	exec, err := r.Resolve(&shared.Principal{UserID: 3, RoleID: int64(RoleExecutive)})
	require.NoError(t, err)
	require.False(t, exec.AllowsField("sale_status_id"))
	require.True(t, exec.AllowsField("promotion_id"))
}

func TestPermitStatus(t *testing.T) {
	r := newTestResolver(t)
	dispatcher, err := r.Resolve(&shared.Principal{UserID: 5, RoleID: int64(RoleDispatcher)})
	require.NoError(t, err)
	require.ErrorIs(t, dispatcher.PermitStatus(1), shared.ErrForbidden)
	require.NoError(t, dispatcher.PermitStatus(6))
}

func TestParsePolicyRejectsUnknownReferences(t *testing.T) {
	_, err := ParsePolicy([]byte(`
statuses: [1]
field_groups: {client: [client_rut]}
roles:
  - id: 1
    field_groups: [billing]
`))
	require.ErrorContains(t, err, "unknown field group")

	_, err = ParsePolicy([]byte(`
statuses: [1]
roles:
  - id: 1
    target_statuses: [9]
`))
	require.ErrorContains(t, err, "unknown status")

	_, err = ParsePolicy([]byte(`
statuses: [1]
roles:
  - id: 1
`))
	require.ErrorContains(t, err, "missing role")
}

func TestLoadPolicy(t *testing.T) {
	policy, err := LoadPolicy("")
	require.NoError(t, err)
	_, err = NewResolver(policy).Resolve(&shared.Principal{UserID: 1, RoleID: int64(RoleConsultant)})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, defaultPolicy, 0o600))
	_, err = LoadPolicy(path)
	require.NoError(t, err)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read policy")
}
