package sales

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/salesdesk/internal/rbac"
	"github.com/salesdesk/salesdesk/internal/shared"
)

// withPrincipal reads the acting principal from test headers.
func withPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get("X-Test-Role"); raw != "" {
			role, _ := strconv.ParseInt(raw, 10, 64)
			user, _ := strconv.ParseInt(r.Header.Get("X-Test-User"), 10, 64)
			r = r.WithContext(shared.ContextWithPrincipal(r.Context(), &shared.Principal{UserID: user, RoleID: role, CompanyID: 1}))
		}
		next.ServeHTTP(w, r)
	})
}

func newTestRouter(t *testing.T, f fixture) http.Handler {
	t.Helper()
	exporter, err := NewExporter(nil)
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Use(withPrincipal)
	r.Route("/sales", NewHandler(nil, f.svc, exporter, rbac.Middleware{}).MountRoutes)
	return r
}

func do(router http.Handler, method, target string, body []byte, contentType string, who *shared.Principal) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Host = "api.salesdesk.test"
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if who != nil {
		req.Header.Set("X-Test-Role", strconv.FormatInt(who.RoleID, 10))
		req.Header.Set("X-Test-User", strconv.FormatInt(who.UserID, 10))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func jsonBody(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestCreateSaleJSON(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)

	rr := do(router, http.MethodPost, "/sales/", jsonBody(t, validCreate("11111111-1")), "application/json", executive)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var sale SaleView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sale))
	require.Equal(t, StatusEntered, sale.StatusID)

	rr = do(router, http.MethodPost, "/sales/", jsonBody(t, validCreate("11111111-1")), "application/json", executive)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(router, http.MethodPost, "/sales/", jsonBody(t, validCreate("9999999-3")), "application/json", validatorUser)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(router, http.MethodPost, "/sales/", jsonBody(t, validCreate("9999999-3")), "application/json", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateSaleMultipart(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"client_first_name": "Ana",
		"client_last_name":  "Pérez",
		"client_rut":        "11111111-1",
		"client_phone":      "+56911112222",
		"region_id":         "13",
		"commune_id":        "131",
		"street":            "Av. Grecia",
		"promotion_id":      "10",
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("other_images", "carnet.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rr := do(router, http.MethodPost, "/sales/", body.Bytes(), mw.FormDataContentType(), executive)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var sale SaleView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sale))
	require.Equal(t, []string{"http://api.salesdesk.test/uploads/1-carnet.png"}, sale.OtherImages)
	require.Equal(t, []string{"/uploads/1-carnet.png"}, f.repo.sale(sale.ID).OtherImages)
}

func TestCreateSaleMultipartBadNumber(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("region_id", "trece"))
	require.NoError(t, mw.Close())

	rr := do(router, http.MethodPost, "/sales/", body.Bytes(), mw.FormDataContentType(), executive)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateSaleEndpoint(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)
	sale := createSale(t, f, "11111111-1")
	target := "/sales/" + strconv.FormatInt(sale.ID, 10)

	rr := do(router, http.MethodPut, target, []byte(`{"sale_status_id":3,"sale_status_reason_id":31}`), "application/json", validatorUser)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(router, http.MethodPut, target, []byte(`{"sale_status_id":1}`), "application/json", dispatcher)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(router, http.MethodPut, target, []byte(`{"street":"x"}`), "application/json", consultant)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(router, http.MethodPut, "/sales/abc", []byte(`{}`), "application/json", admin)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateAcceptsAbsoluteImageURLs(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)
	in := validCreate("11111111-1")
	in.OtherImages = []string{"/uploads/a.png", "/uploads/b.png"}
	sale, err := f.svc.Create(t.Context(), executive, in, nil)
	require.NoError(t, err)

	body := `{"other_images":["http://api.salesdesk.test/uploads/a.png"]}`
	rr := do(router, http.MethodPut, "/sales/"+strconv.FormatInt(sale.ID, 10), []byte(body), "application/json", executive)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, []string{"/uploads/a.png"}, f.repo.sale(sale.ID).OtherImages)
	require.Equal(t, []string{"/uploads/b.png"}, f.store.removed)
}

func TestPriorityEndpoint(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)
	sale := createSale(t, f, "11111111-1")
	target := "/sales/" + strconv.FormatInt(sale.ID, 10) + "/priority"

	rr := do(router, http.MethodPut, target, []byte(`{"is_priority":true}`), "application/json", executive)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, f.repo.sale(sale.ID).IsPriority)

	rr = do(router, http.MethodPut, target, []byte(`{}`), "application/json", executive)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(router, http.MethodPut, target, []byte(`{"is_priority":false}`), "application/json", dispatcher)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestListSalesEndpoint(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)
	for i := 0; i < 12; i++ {
		f.repo.put(Sale{StatusID: StatusEntered, CompanyID: 1, OtherImages: []string{"/uploads/x.png"}})
	}

	rr := do(router, http.MethodGet, "/sales/?page=2&limit=5&sort_field=sale_id&region_id=13", nil, "", superAdmin)
	require.Equal(t, http.StatusOK, rr.Code)

	var res ListResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, 12, res.TotalCount)
	require.Equal(t, 3, res.TotalPages)
	require.Equal(t, 2, res.Page)
	require.Len(t, res.Items, 5)
	require.Equal(t, int64(6), res.Items[0].ID)
	require.Equal(t, "http://api.salesdesk.test/uploads/x.png", res.Items[0].OtherImages[0])

	rr = do(router, http.MethodGet, "/sales/?is_priority=maybe", nil, "", superAdmin)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(router, http.MethodGet, "/sales/?start_date=14-03-2026", nil, "", superAdmin)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(router, http.MethodGet, "/sales/", nil, "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestExportEndpoint(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)
	createSale(t, f, "11111111-1")

	rr := do(router, http.MethodGet, "/sales/?export=true&format=csv", nil, "", superAdmin)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "attachment; filename=ventas-")
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(rr.Body.String(), "\ufeff")), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "ID,Fecha,Nombre"))
	require.True(t, strings.HasPrefix(lines[1], "1,2026-03-14 09:30:00,Ana,Pérez,11111111-1"))

	rr = do(router, http.MethodGet, "/sales/?export=true&format=excel", nil, "", superAdmin)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), ".xlsx")

	rr = do(router, http.MethodGet, "/sales/?export=true&format=word", nil, "", superAdmin)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, docxContentType, rr.Header().Get("Content-Type"))
	require.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")))

	rr = do(router, http.MethodGet, "/sales/?export=true&format=odt", nil, "", superAdmin)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(router, http.MethodGet, "/sales/?export=true&format=pdf", nil, "", superAdmin)
	require.Equal(t, http.StatusBadRequest, rr.Code, "pdf without renderer")
}

func TestGetAndHistoryEndpoints(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)
	sale := createSale(t, f, "11111111-1")
	id := strconv.FormatInt(sale.ID, 10)

	rr := do(router, http.MethodGet, "/sales/"+id, nil, "", executive)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(router, http.MethodGet, "/sales/404", nil, "", executive)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(router, http.MethodGet, "/sales/history/"+id, nil, "", admin)
	require.Equal(t, http.StatusOK, rr.Code)
	var entries []HistoryEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, EventEntered, entries[0].EventType)
}

func TestSearchEndpoint(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)
	createSale(t, f, "11111111-1")

	rr := do(router, http.MethodPost, "/sales/search", []byte(`{"query":"ana"}`), "application/json", consultant)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(router, http.MethodPost, "/sales/search", []byte(`{"query":""}`), "application/json", consultant)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
