package layaway

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
	r.Route("/layaways", h.MountRoutes)

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

func TestLayawayEndpoints(t *testing.T) {
	f := newFixture()
	h := NewHandler(nil, f.svc, rbac.Middleware{})

	rec := serveAs(t, h, "Staff", http.MethodPost, "/layaways/",
		`{"customerName":"Wanjiru","productName":"Sofa","totalAmount":8500,"initialDeposit":4000}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"Pending"`)

	rec = serveAs(t, h, "Staff", http.MethodPost, "/layaways/1/payments", `{"amount":5000,"method":"Cash"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "remaining balance")

	rec = serveAs(t, h, "Staff", http.MethodPost, "/layaways/1/payments", `{"amount":4499.995,"method":"Cash"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "at most 2 decimal places")

	rec = serveAs(t, h, "Staff", http.MethodPost, "/layaways/1/payments", `{"amount":4500,"method":"Cash"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"Paid"`)

	rec = serveAs(t, h, "Staff", http.MethodPost, "/layaways/1/payments", `{"amount":1,"method":"Cash"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = serveAs(t, h, "Staff", http.MethodGet, "/layaways/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"payments"`)

	rec = serveAs(t, h, "Staff", http.MethodGet, "/layaways/?status=Paid", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Wanjiru")

	rec = serveAs(t, h, "Staff", http.MethodGet, "/layaways/2", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLayawayRequiresLogin(t *testing.T) {
	f := newFixture()
	h := NewHandler(nil, f.svc, rbac.Middleware{})
	rec := serveAs(t, h, "", http.MethodGet, "/layaways/", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
