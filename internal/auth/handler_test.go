package auth_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dukapos/dukapos/internal/auth"
	"github.com/dukapos/dukapos/internal/rbac"
	"github.com/dukapos/dukapos/internal/shared"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	if s.user == nil || s.user.Username != username {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

type stubGate struct {
	password string
}

func (g stubGate) VerifyBusinessPassword(ctx context.Context, password string) error {
	if password != g.password {
		return fmt.Errorf("%w: invalid business password", shared.ErrForbidden)
	}
	return nil
}

type recordingAudit struct {
	entries []shared.AuditLog
}

func (r *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	r.entries = append(r.entries, log)
	return nil
}

type harness struct {
	router   http.Handler
	sessions *shared.SessionManager
	audit    *recordingAudit
	cookie   *http.Cookie
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := auth.HashPassword("till-pass-01")
	require.NoError(t, err)
	repo := &stubRepo{user: &auth.User{ID: 9, Username: "mary", PasswordHash: hash, Role: rbac.RoleManager, IsActive: true}}

	sessions := shared.NewSessionManager(client, "duka_session", time.Hour, false)
	audit := &recordingAudit{}
	handler := auth.NewHandler(nil, auth.NewService(repo), sessions, shared.NewCSRFManager("csrf"), stubGate{password: "open-sesame"}, audit, time.Minute)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(req.Context(), sess)
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, req.WithContext(ctx))
			require.NoError(t, sessions.Commit(ctx, w, sess))
			for k, v := range rec.Header() {
				w.Header()[k] = v
			}
			w.WriteHeader(rec.Code)
			_, _ = w.Write(rec.Body.Bytes())
		})
	})
	r.Route("/auth", handler.MountRoutes)
	return &harness{router: r, sessions: sessions, audit: audit}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == h.sessions.CookieName() {
			h.cookie = c
		}
	}
	return rec
}

func TestLoginAndMe(t *testing.T) {
	h := newHarness(t)

	res := h.do(t, http.MethodGet, "/auth/me", "")
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = h.do(t, http.MethodPost, "/auth/login", `{"username":"mary","password":"till-pass-01"}`)
	require.Equal(t, http.StatusOK, res.Code)
	var login struct {
		User      auth.Profile `json:"user"`
		CSRFToken string       `json:"csrfToken"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &login))
	require.Equal(t, "Manager", login.User.Role)
	require.Contains(t, login.User.Permissions, rbac.PermReportsSend)
	require.NotEmpty(t, login.CSRFToken)
	require.Len(t, h.audit.entries, 1)

	res = h.do(t, http.MethodGet, "/auth/me", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"username":"mary"`)
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t)

	res := h.do(t, http.MethodPost, "/auth/login", `{"username":"mary","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Empty(t, h.audit.entries)

	res = h.do(t, http.MethodPost, "/auth/login", `{"username":""}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestUnlockRequiresBusinessPassword(t *testing.T) {
	h := newHarness(t)

	res := h.do(t, http.MethodPost, "/auth/unlock", `{"password":"open-sesame"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = h.do(t, http.MethodPost, "/auth/login", `{"username":"mary","password":"till-pass-01"}`)
	require.Equal(t, http.StatusOK, res.Code)

	res = h.do(t, http.MethodPost, "/auth/unlock", `{"password":"guess"}`)
	require.Equal(t, http.StatusForbidden, res.Code)

	res = h.do(t, http.MethodPost, "/auth/unlock", `{"password":"open-sesame"}`)
	require.Equal(t, http.StatusOK, res.Code)

	res = h.do(t, http.MethodGet, "/auth/me", "")
	require.Contains(t, res.Body.String(), `"unlocked":true`)
}

func TestLogoutClearsSession(t *testing.T) {
	h := newHarness(t)
	res := h.do(t, http.MethodPost, "/auth/login", `{"username":"mary","password":"till-pass-01"}`)
	require.Equal(t, http.StatusOK, res.Code)

	res = h.do(t, http.MethodPost, "/auth/logout", "")
	require.Equal(t, http.StatusNoContent, res.Code)

	res = h.do(t, http.MethodGet, "/auth/me", "")
	require.Equal(t, http.StatusUnauthorized, res.Code)
}
