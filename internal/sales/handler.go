package sales

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/salesdesk/salesdesk/internal/platform/httpx"
	"github.com/salesdesk/salesdesk/internal/rbac"
	"github.com/salesdesk/salesdesk/internal/shared"
)

const (
	attachmentField = "other_images"
	// multipartMemory is held in memory before multipart parts spill to disk.
	multipartMemory = 8 << 20
)

// Handler manages sales endpoints.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	exporter       *Exporter
	rbac           rbac.Middleware
	maxUploadBytes int64
}

// NewHandler builds Handler instance. exporter may be nil, which disables export.
func NewHandler(logger *slog.Logger, service *Service, exporter *Exporter, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		exporter:       exporter,
		rbac:           rbac,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
}

// SetMaxUploadBytes sets the per-file limit used to bound request bodies.
func (h *Handler) SetMaxUploadBytes(n int64) {
	if n > 0 {
		h.maxUploadBytes = n
	}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated())
		r.Get("/", h.listSales)
		r.Get("/{id}", h.getSale)
		r.Get("/history/{id}", h.getHistory)
		r.Post("/search", h.searchSales)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRoles(rbac.RoleSuperAdmin, rbac.RoleAdmin, rbac.RoleExecutive))
		r.Post("/", h.createSale)
		r.Put("/{id}/priority", h.setPriority)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRoles(rbac.RoleSuperAdmin, rbac.RoleAdmin, rbac.RoleExecutive, rbac.RoleValidator, rbac.RoleDispatcher))
		r.Put("/{id}", h.updateSale)
	})
}

// ============================================================================
// WRITES
// ============================================================================

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var (
		in      CreateSaleInput
		uploads []Upload
		err     error
	)
	if isMultipart(r) {
		var form *multipart.Form
		form, err = h.parseMultipart(w, r)
		if err == nil {
			in, err = createInputFromForm(formValues(form.Value))
		}
		if err == nil {
			uploads, err = readUploads(form.File[attachmentField], h.maxUploadBytes)
		}
	} else {
		err = httpx.DecodeJSON(r, &in)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.Create(r.Context(), shared.PrincipalFromContext(r.Context()), in, uploads)
	if err != nil {
		h.fail(w, "create sale", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, withAbsoluteImages(r, sale))
}

func (h *Handler) updateSale(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var (
		in      UpdateSaleInput
		uploads []Upload
	)
	if isMultipart(r) {
		var form *multipart.Form
		form, err = h.parseMultipart(w, r)
		if err == nil {
			in, err = updateInputFromForm(formValues(form.Value))
		}
		if err == nil {
			uploads, err = readUploads(form.File[attachmentField], h.maxUploadBytes)
		}
	} else {
		err = httpx.DecodeJSON(r, &in)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if in.OtherImages != nil {
		kept := relativeImages(*in.OtherImages)
		in.OtherImages = &kept
	}
	sale, err := h.service.Update(r.Context(), shared.PrincipalFromContext(r.Context()), id, in, uploads)
	if err != nil {
		h.fail(w, "update sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, withAbsoluteImages(r, sale))
}

func (h *Handler) setPriority(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body struct {
		IsPriority *bool `json:"is_priority"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if body.IsPriority == nil {
		httpx.RespondError(w, fmt.Errorf("%w: is_priority required", shared.ErrValidation))
		return
	}
	sale, err := h.service.SetPriority(r.Context(), shared.PrincipalFromContext(r.Context()), id, *body.IsPriority)
	if err != nil {
		h.fail(w, "set priority", err)
		return
	}
	httpx.JSON(w, http.StatusOK, withAbsoluteImages(r, sale))
}

// ============================================================================
// READS
// ============================================================================

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params, err := parseListParams(q)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	if strings.EqualFold(q.Get("export"), "true") {
		h.export(w, r, principal, params, q.Get("format"))
		return
	}
	result, err := h.service.List(r.Context(), principal, params)
	if err != nil {
		h.fail(w, "list sales", err)
		return
	}
	for i := range result.Items {
		result.Items[i] = withAbsoluteImages(r, result.Items[i])
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, p *shared.Principal, params ListParams, rawFormat string) {
	format, err := ParseExportFormat(rawFormat)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.exporter == nil {
		httpx.RespondError(w, fmt.Errorf("%w: export is not configured", shared.ErrValidation))
		return
	}
	rows, err := h.service.ExportRows(r.Context(), p, params)
	if err != nil {
		h.fail(w, "export sales", err)
		return
	}
	doc, err := h.exporter.Render(r.Context(), format, rows)
	if err != nil {
		h.fail(w, "render export", err)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.Get(r.Context(), shared.PrincipalFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, withAbsoluteImages(r, sale))
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.History(r.Context(), shared.PrincipalFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "sale history", err)
		return
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) searchSales(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
		Page  int    `json:"page"`
		Limit int    `json:"limit"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Search(r.Context(), shared.PrincipalFromContext(r.Context()), body.Query, body.Page, body.Limit)
	if err != nil {
		h.fail(w, "search sales", err)
		return
	}
	for i := range result.Items {
		result.Items[i] = withAbsoluteImages(r, result.Items[i])
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// ============================================================================
// INPUT PARSING
// ============================================================================

func isMultipart(r *http.Request) bool {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && ct == "multipart/form-data"
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(MaxAttachments+1)*h.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: request body too large", shared.ErrValidation)
		}
		return nil, fmt.Errorf("%w: malformed multipart body", shared.ErrValidation)
	}
	return r.MultipartForm, nil
}

func readUploads(files []*multipart.FileHeader, maxBytes int64) ([]Upload, error) {
	if len(files) > MaxAttachments {
		return nil, fmt.Errorf("%w: at most %d attachments", shared.ErrValidation, MaxAttachments)
	}
	out := make([]Upload, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxBytes {
			return nil, fmt.Errorf("%w: attachment %q exceeds %d bytes", shared.ErrValidation, fh.Filename, maxBytes)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("sales: open upload: %w", err)
		}
		data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("sales: read upload: %w", err)
		}
		out = append(out, Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        int64(len(data)),
			Data:        data,
		})
	}
	return out, nil
}

// formValues reads multipart text fields.
type formValues map[string][]string

func (f formValues) has(key string) bool {
	_, ok := f[key]
	return ok
}

func (f formValues) str(key string) string {
	if v := f[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (f formValues) strPtr(key string) *string {
	if !f.has(key) {
		return nil
	}
	v := f.str(key)
	return &v
}

func (f formValues) int64Ptr(key string) (*int64, error) {
	raw := strings.TrimSpace(f.str(key))
	if raw == "" || raw == "null" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", shared.ErrValidation, key)
	}
	return &v, nil
}

func (f formValues) num(key string) (int64, error) {
	v, err := f.int64Ptr(key)
	if err != nil || v == nil {
		return 0, err
	}
	return *v, nil
}

type intField struct {
	key string
	dst **int64
}

func (f formValues) ints(fields ...intField) error {
	for _, fd := range fields {
		v, err := f.int64Ptr(fd.key)
		if err != nil {
			return err
		}
		*fd.dst = v
	}
	return nil
}

func createInputFromForm(f formValues) (CreateSaleInput, error) {
	in := CreateSaleInput{
		ServiceID:             f.strPtr("service_id"),
		ClientFirstName:       f.str("client_first_name"),
		ClientLastName:        f.str("client_last_name"),
		ClientRut:             f.str("client_rut"),
		ClientEmail:           f.str("client_email"),
		ClientPhone:           f.str("client_phone"),
		ClientSecondaryPhone:  f.str("client_secondary_phone"),
		Street:                f.str("street"),
		Number:                f.str("number"),
		DepartmentOfficeFloor: f.str("department_office_floor"),
		GeoReference:          f.str("geo_reference"),
		AdditionalComments:    f.str("additional_comments"),
		OtherImages:           f[attachmentField],
	}
	if in.ServiceID != nil && strings.TrimSpace(*in.ServiceID) == "" {
		in.ServiceID = nil
	}
	var err error
	if in.RegionID, err = f.num("region_id"); err != nil {
		return in, err
	}
	if in.CommuneID, err = f.num("commune_id"); err != nil {
		return in, err
	}
	if in.PromotionID, err = f.num("promotion_id"); err != nil {
		return in, err
	}
	err = f.ints(
		intField{"sales_channel_id", &in.SalesChannelID},
		intField{"company_id", &in.CompanyID},
		intField{"sale_status_reason_id", &in.StatusReasonID},
	)
	return in, err
}

func updateInputFromForm(f formValues) (UpdateSaleInput, error) {
	in := UpdateSaleInput{
		ServiceID:             f.strPtr("service_id"),
		ClientFirstName:       f.strPtr("client_first_name"),
		ClientLastName:        f.strPtr("client_last_name"),
		ClientRut:             f.strPtr("client_rut"),
		ClientEmail:           f.strPtr("client_email"),
		ClientPhone:           f.strPtr("client_phone"),
		ClientSecondaryPhone:  f.strPtr("client_secondary_phone"),
		Street:                f.strPtr("street"),
		Number:                f.strPtr("number"),
		DepartmentOfficeFloor: f.strPtr("department_office_floor"),
		GeoReference:          f.strPtr("geo_reference"),
		AdditionalComments:    f.strPtr("additional_comments"),
	}
	if f.has(attachmentField) {
		kept := cleanPaths(f[attachmentField])
		in.OtherImages = &kept
	}
	err := f.ints(
		intField{"sales_channel_id", &in.SalesChannelID},
		intField{"region_id", &in.RegionID},
		intField{"commune_id", &in.CommuneID},
		intField{"promotion_id", &in.PromotionID},
		intField{"company_id", &in.CompanyID},
		intField{"sale_status_id", &in.StatusID},
		intField{"sale_status_reason_id", &in.StatusReasonID},
		intField{"version", &in.Version},
	)
	return in, err
}

func parseListParams(q url.Values) (ListParams, error) {
	params := ListParams{
		SortField: q.Get("sort_field"),
		SortOrder: q.Get("sort_order"),
	}
	params.Page, _ = strconv.Atoi(q.Get("page"))
	params.PageSize, _ = strconv.Atoi(q.Get("limit"))

	f := formValues(q)
	fl := &params.Filters
	err := f.ints(
		intField{"sales_channel_id", &fl.SalesChannelID},
		intField{"region_id", &fl.RegionID},
		intField{"commune_id", &fl.CommuneID},
		intField{"promotion_id", &fl.PromotionID},
		intField{"installation_amount_id", &fl.InstallationAmountID},
		intField{"sale_status_id", &fl.StatusID},
		intField{"sale_status_reason_id", &fl.StatusReasonID},
		intField{"company_id", &fl.CompanyID},
		intField{"role_id", &fl.ActorRoleID},
	)
	if err != nil {
		return params, err
	}
	if raw := strings.TrimSpace(q.Get("is_priority")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return params, fmt.Errorf("%w: is_priority must be a boolean", shared.ErrValidation)
		}
		fl.IsPriority = &v
	}
	if fl.StartDate, err = parseDate(q, "start_date"); err != nil {
		return params, err
	}
	if fl.EndDate, err = parseDate(q, "end_date"); err != nil {
		return params, err
	}
	return params, nil
}

func parseDate(q url.Values, key string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	if len(raw) > len(dateLayout) {
		raw = raw[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", shared.ErrValidation, key)
	}
	return &t, nil
}

// ============================================================================
// ATTACHMENT URLS
// ============================================================================

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func withAbsoluteImages(r *http.Request, v SaleView) SaleView {
	if len(v.OtherImages) == 0 {
		return v
	}
	base := requestBaseURL(r)
	out := make([]string, len(v.OtherImages))
	for i, p := range v.OtherImages {
		if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
			out[i] = p
			continue
		}
		out[i] = base + "/" + strings.TrimPrefix(p, "/")
	}
	v.OtherImages = out
	return v
}

// relativeImages strips scheme and host so clients may echo back the
// absolute URLs they were given.
func relativeImages(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if u, err := url.Parse(p); err == nil && u.Host != "" {
			p = u.Path
		}
		out = append(out, p)
	}
	return out
}
