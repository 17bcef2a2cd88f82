package refdata

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/salesdesk/internal/rbac"
	"github.com/salesdesk/salesdesk/internal/shared"
)

func newTestRouter(t *testing.T, p *shared.Principal) http.Handler {
	t.Helper()
	h := NewHandler(nil, newTestService(t, newMemRepo()), rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if p != nil {
				req = req.WithContext(shared.ContextWithPrincipal(req.Context(), p))
			}
			next.ServeHTTP(w, req)
		})
	})
	h.MountRoutes(r)
	return r
}

func TestListCommunesOfRegion(t *testing.T) {
	router := newTestRouter(t, &shared.Principal{UserID: 1, RoleID: 6, CompanyID: 1})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/regions/13/communes", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var communes []Commune
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &communes))
	require.Len(t, communes, 1)
	require.Equal(t, "Ñuñoa", communes[0].Name)
}

func TestReadsRequireAuthentication(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/regions", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestWritesRestrictedToAdministrators(t *testing.T) {
	body := `{"channel_name":"Terreno"}`

	router := newTestRouter(t, &shared.Principal{UserID: 4, RoleID: int64(rbac.RoleValidator), CompanyID: 1})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sales-channels", strings.NewReader(body)))
	require.Equal(t, http.StatusForbidden, rr.Code)

	router = newTestRouter(t, &shared.Principal{UserID: 2, RoleID: int64(rbac.RoleAdmin), CompanyID: 1})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sales-channels", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code)
}

func TestPromotionsRejectsBadCommuneFilter(t *testing.T) {
	router := newTestRouter(t, &shared.Principal{UserID: 1, RoleID: 1})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/promotions?commune_id=abc", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
