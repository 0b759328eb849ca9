package settings

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

func serveAs(t *testing.T, h *Handler, role string, unlocked bool, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/settings", h.MountRoutes)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	mgr := shared.NewSessionManager(nil, "test", time.Hour, false)
	sess, err := mgr.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetUser(1, "tester", role)
	if unlocked {
		sess.Unlock(time.Now().Add(time.Minute))
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSettingsRequireAdminAndUnlock(t *testing.T) {
	svc, _, _ := newTestService(t)
	h := NewHandler(nil, svc, rbac.Middleware{})

	rec := serveAs(t, h, "Manager", true, http.MethodGet, "/settings/", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serveAs(t, h, "Admin", false, http.MethodGet, "/settings/", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "business password required")

	rec = serveAs(t, h, "Admin", true, http.MethodGet, "/settings/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Duka Ya Mama")

	rec = serveAs(t, h, "Admin", true, http.MethodPut, "/settings/", `{"name":"Duka Bora","currency":"KES","taxRate":0.16}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestFirstBusinessPasswordNeedsNoUnlock(t *testing.T) {
	svc, _, _ := newTestService(t)
	h := NewHandler(nil, svc, rbac.Middleware{})

	rec := serveAs(t, h, "Admin", false, http.MethodPost, "/settings/business-password", `{"newPassword":"back-office-1"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = serveAs(t, h, "Admin", false, http.MethodPost, "/settings/business-password",
		`{"currentPassword":"back-office-1","newPassword":"back-office-2"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serveAs(t, h, "Admin", true, http.MethodPost, "/settings/business-password",
		`{"currentPassword":"back-office-1","newPassword":"back-office-2"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
