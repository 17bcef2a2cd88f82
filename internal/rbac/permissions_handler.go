package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/salesdesk/salesdesk/internal/platform/httpx"
	"github.com/salesdesk/salesdesk/internal/shared"
)

// PermissionsHandler exposes the resolved capability of the caller.
type PermissionsHandler struct {
	resolver *Resolver
	rbac     Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(resolver *Resolver, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{resolver: resolver, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated())
		r.Get("/me", h.me)
	})
}

type scopeResponse struct {
	RoleID         int64      `json:"role_id"`
	Role           string     `json:"role"`
	Visibility     Visibility `json:"visibility"`
	Search         Visibility `json:"search"`
	TargetStatuses []int64    `json:"allowed_target_statuses"`
	Fields         []string   `json:"field_whitelist"`
	CanCreate      bool       `json:"can_create"`
	CanPrioritize  bool       `json:"can_prioritize"`
}

func (h *PermissionsHandler) me(w http.ResponseWriter, r *http.Request) {
	scope, err := h.resolver.Resolve(shared.PrincipalFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, scopeResponse{
		RoleID:         int64(scope.Role),
		Role:           scope.Role.String(),
		Visibility:     scope.Read,
		Search:         scope.Search,
		TargetStatuses: scope.AllowedTargetStatuses(),
		Fields:         scope.FieldWhitelist(),
		CanCreate:      scope.CanCreate,
		CanPrioritize:  scope.CanPrioritize,
	})
}
