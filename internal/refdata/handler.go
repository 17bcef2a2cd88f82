package refdata

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/salesdesk/salesdesk/internal/platform/httpx"
	"github.com/salesdesk/salesdesk/internal/rbac"
	"github.com/salesdesk/salesdesk/internal/shared"
)

// Handler exposes reference data endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers reference data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated())
		r.Get("/regions", h.listRegions)
		r.Get("/regions/{id}/communes", h.listCommunes)
		r.Get("/companies", h.listCompanies)
		r.Get("/promotions", h.listPromotions)
		r.Get("/installation-amounts", h.listAmounts)
		r.Get("/sale-statuses", h.listStatuses)
		r.Get("/sale-statuses/{id}/reasons", h.listReasons)
		r.Get("/sales-channels", h.listChannels)
		r.Get("/contracts", h.listContracts)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRoles(rbac.RoleSuperAdmin, rbac.RoleAdmin))
		r.Post("/companies", h.createCompany)
		r.Put("/companies/{id}", h.updateCompany)
		r.Post("/promotions", h.createPromotion)
		r.Put("/promotions/{id}/installation-amount", h.setPromotionAmount)
		r.Post("/sales-channels", h.createChannel)
	})
}

func (h *Handler) listRegions(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Regions(r.Context())
	h.respond(w, items, err)
}

func (h *Handler) listCommunes(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.Communes(r.Context(), id)
	h.respond(w, items, err)
}

func (h *Handler) listCompanies(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Companies(r.Context())
	h.respond(w, items, err)
}

func (h *Handler) listPromotions(w http.ResponseWriter, r *http.Request) {
	var communeID *int64
	if raw := strings.TrimSpace(r.URL.Query().Get("commune_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.RespondError(w, fmt.Errorf("%w: invalid commune_id", shared.ErrValidation))
			return
		}
		communeID = &id
	}
	items, err := h.service.Promotions(r.Context(), communeID)
	h.respond(w, items, err)
}

func (h *Handler) listAmounts(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.InstallationAmounts(r.Context())
	h.respond(w, items, err)
}

func (h *Handler) listStatuses(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Statuses(r.Context())
	h.respond(w, items, err)
}

func (h *Handler) listReasons(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.Reasons(r.Context(), id)
	h.respond(w, items, err)
}

func (h *Handler) listChannels(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Channels(r.Context())
	h.respond(w, items, err)
}

func (h *Handler) listContracts(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Contracts(r.Context())
	h.respond(w, items, err)
}

func (h *Handler) createCompany(w http.ResponseWriter, r *http.Request) {
	var in CompanyInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	company, err := h.service.CreateCompany(r.Context(), in)
	h.respondStatus(w, http.StatusCreated, company, err)
}

func (h *Handler) updateCompany(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in CompanyInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	company, err := h.service.UpdateCompany(r.Context(), id, in)
	h.respond(w, company, err)
}

func (h *Handler) createPromotion(w http.ResponseWriter, r *http.Request) {
	var in PromotionInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	promo, err := h.service.CreatePromotion(r.Context(), in)
	h.respondStatus(w, http.StatusCreated, promo, err)
}

func (h *Handler) setPromotionAmount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body struct {
		InstallationAmountID int64 `json:"installation_amount_id"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	promo, err := h.service.SetPromotionAmount(r.Context(), id, body.InstallationAmountID)
	h.respond(w, promo, err)
}

func (h *Handler) createChannel(w http.ResponseWriter, r *http.Request) {
	var in ChannelInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	channel, err := h.service.CreateChannel(r.Context(), in)
	h.respondStatus(w, http.StatusCreated, channel, err)
}

func (h *Handler) respond(w http.ResponseWriter, data any, err error) {
	h.respondStatus(w, http.StatusOK, data, err)
}

func (h *Handler) respondStatus(w http.ResponseWriter, status int, data any, err error) {
	if err != nil {
		if h.logger != nil && !isClientError(err) {
			h.logger.Error("refdata request failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, data)
}

func isClientError(err error) bool {
	return httpx.StatusFor(err) < http.StatusInternalServerError
}
