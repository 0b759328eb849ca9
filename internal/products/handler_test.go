package products

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/dukapos/dukapos/internal/rbac"
	"github.com/dukapos/dukapos/internal/shared"
)

func serveAs(t *testing.T, h *Handler, role, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/products", h.MountRoutes)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	mgr := shared.NewSessionManager(nil, "test", time.Hour, false)
	sess, err := mgr.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetUser(1, "tester", role)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRoleGates(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	h := NewHandler(nil, svc, rbac.Middleware{})
	body := `{"name":"Tea 500g","sku":"TEA-5","stock":3,"price":250,"minPrice":200,"lowStockThreshold":4}`

	rec := serveAs(t, h, "Staff", http.MethodPost, "/products/", body)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serveAs(t, h, "Manager", http.MethodPost, "/products/", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serveAs(t, h, "Staff", http.MethodGet, "/products/low-stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "TEA-5")

	rec = serveAs(t, h, "Manager", http.MethodDelete, "/products/1", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serveAs(t, h, "Admin", http.MethodDelete, "/products/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlerValidationProblem(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	h := NewHandler(nil, svc, rbac.Middleware{})

	rec := serveAs(t, h, "Admin", http.MethodPost, "/products/", `{"name":"Tea","sku":"T","price":10,"minPrice":12}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "minPrice")

	rec = serveAs(t, h, "Admin", http.MethodGet, "/products/42", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
