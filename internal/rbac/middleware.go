package rbac

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/salesdesk/salesdesk/internal/platform/httpx"
	"github.com/salesdesk/salesdesk/internal/shared"
)

// Middleware wires role guards for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAuthenticated rejects requests without a principal.
func (m Middleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return m.RequireRoles()
}

// RequireRoles ensures the principal holds one of roles. With no roles it
// only requires authentication.
func (m Middleware) RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := shared.PrincipalFromContext(r.Context())
			if p == nil {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			if len(allowed) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := allowed[Role(p.RoleID)]; ok {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("rbac role denied",
					slog.Int64("user_id", p.UserID),
					slog.Int64("role_id", p.RoleID),
					slog.String("path", r.URL.Path))
			}
			httpx.RespondError(w, fmt.Errorf("%w: role %s not allowed", shared.ErrForbidden, Role(p.RoleID)))
		})
	}
}
