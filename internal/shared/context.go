package shared

import "context"

// Principal is the authenticated actor behind a request.
type Principal struct {
	UserID    int64 `json:"user_id"`
	RoleID    int64 `json:"role_id"`
	CompanyID int64 `json:"company_id"`
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
