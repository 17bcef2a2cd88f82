package app

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/salesdesk/salesdesk/internal/auth"
	"github.com/salesdesk/salesdesk/internal/observability"
	"github.com/salesdesk/salesdesk/internal/rbac"
	_ "github.com/salesdesk/salesdesk/testing"
)

func newTestRouter(t *testing.T) (http.Handler, *auth.TokenIssuer, string) {
	t.Helper()
	tokens, err := auth.NewTokenIssuer("router-secret", time.Hour)
	require.NoError(t, err)
	policy, err := rbac.DefaultPolicy()
	require.NoError(t, err)
	dir := t.TempDir()

	guard := rbac.Middleware{}
	router := NewRouter(RouterParams{
		Config:             &Config{AppEnv: "test"},
		Tokens:             tokens,
		PermissionsHandler: rbac.NewPermissionsHandler(rbac.NewResolver(policy), guard),
		Metrics:            observability.NewMetrics(),
		UploadDir:          dir,
	})
	return router, tokens, dir
}

func TestHealthz(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestPermissionsRequireToken(t *testing.T) {
	router, tokens, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/permissions/me", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	token, _, err := tokens.Issue(auth.User{ID: 4, RoleID: int64(rbac.RoleValidator), CompanyID: 1})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/permissions/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"role_id":4`)
}

func TestUploadsServedWithoutListing(t *testing.T) {
	router, _, dir := newTestRouter(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("png"), 0o644))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/uploads/a.png", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "png", rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/uploads/", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `salesdesk_http_requests_total{code="200",route="/healthz"}`)
}
