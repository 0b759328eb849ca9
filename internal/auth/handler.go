package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dukapos/dukapos/internal/platform/httpx"
	"github.com/dukapos/dukapos/internal/rbac"
	"github.com/dukapos/dukapos/internal/shared"
)

// BusinessGate verifies the shop-wide business password.
type BusinessGate interface {
	VerifyBusinessPassword(ctx context.Context, password string) error
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	gate           BusinessGate
	audit          shared.AuditRecorder
	unlockTTL      time.Duration
	now            func() time.Time
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, gate BusinessGate, audit shared.AuditRecorder, unlockTTL time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if unlockTTL <= 0 {
		unlockTTL = 15 * time.Minute
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		gate:           gate,
		audit:          audit,
		unlockTTL:      unlockTTL,
		now:            time.Now,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.handleCSRF)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
	r.Post("/unlock", h.handleUnlock)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type unlockRequest struct {
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.RespondError(w, fmt.Errorf("session missing"))
		return
	}
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Info("login rejected", slog.String("username", req.Username))
		httpx.RespondError(w, err)
		return
	}
	if err := h.sessionManager.Renew(r.Context(), sess); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sess.SetUser(user.ID, user.Username, string(user.Role))
	sess.Lock()
	token, err := h.csrfManager.Rotate(sess)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shared.RecordBestEffort(r.Context(), h.logger, h.audit, shared.AuditLog{
		User:    user.Username,
		Action:  shared.AuditActionAuth,
		Details: fmt.Sprintf("User %s signed in", user.Username),
	})
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user":      h.profile(sess),
		"csrfToken": token,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, h.profile(sess))
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req unlockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.gate.VerifyBusinessPassword(r.Context(), req.Password); err != nil {
		h.logger.Warn("business unlock rejected", slog.String("username", sess.Username()))
		httpx.RespondError(w, err)
		return
	}
	until := h.now().Add(h.unlockTTL)
	sess.Unlock(until)
	shared.RecordBestEffort(r.Context(), h.logger, h.audit, shared.AuditLog{
		User:    sess.Username(),
		Action:  shared.AuditActionAuth,
		Details: fmt.Sprintf("Business password unlock by %s", sess.Username()),
	})
	httpx.JSON(w, http.StatusOK, map[string]any{"unlockedUntil": until.UTC()})
}

func (h *Handler) profile(sess *shared.Session) Profile {
	role, _ := rbac.ParseRole(sess.Role())
	return Profile{
		ID:          sess.UserID(),
		Username:    sess.Username(),
		Role:        string(role),
		Permissions: rbac.EffectivePermissions(role),
		Unlocked:    sess.UnlockedAt(h.now()),
	}
}
