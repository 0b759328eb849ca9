package reporting

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dukapos/dukapos/internal/ai"
	"github.com/dukapos/dukapos/internal/mailer"
	"github.com/dukapos/dukapos/internal/platform/httpx"
	"github.com/dukapos/dukapos/internal/rbac"
	"github.com/dukapos/dukapos/internal/shared"
)

// Enqueuer schedules an email report on the background worker.
type Enqueuer interface {
	EnqueueEmailReport(ctx context.Context, actor string) (string, error)
}

// Handler serves the AI report endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer Enqueuer
	rbac     rbac.Middleware
}

// NewHandler constructs Handler. A nil enqueuer disables POST /email/enqueue.
func NewHandler(logger *slog.Logger, service *Service, enqueuer Enqueuer, rbacMW rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, enqueuer: enqueuer, rbac: rbacMW}
}

// MountRoutes registers the report routes on the reports router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermReportsView)).Post("/reorder-suggestions", h.reorder)
	r.With(h.rbac.RequireAny(rbac.PermReportsView)).Get("/preview.pdf", h.preview)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermReportsSend))
		r.Use(h.rbac.RequireUnlocked)
		r.Post("/email", h.sendEmail)
		r.Post("/email/enqueue", h.enqueue)
	})
}

func (h *Handler) reorder(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.SuggestReorders(r.Context(), shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondStage(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) sendEmail(w http.ResponseWriter, r *http.Request) {
	delivery, err := h.service.SendEmailReport(r.Context(), shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondStage(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, delivery)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "background worker not configured")
		return
	}
	id, err := h.enqueuer.EnqueueEmailReport(r.Context(), shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("enqueue email report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"taskId": id})
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	pdf, err := h.service.PreviewPDF(r.Context())
	if err != nil {
		h.respondStage(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="report.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// respondStage reports pipeline failures with their user-facing message
// followed by the provider's own reason when one was returned.
func (h *Handler) respondStage(w http.ResponseWriter, err error) {
	if stage, ok := asStage(err); ok {
		httpx.Problem(w, http.StatusBadGateway, "Upstream Failure", withCause(stage.Message(), err))
		return
	}
	if flow, ok := asFlow(err); ok {
		httpx.Problem(w, http.StatusBadGateway, "Upstream Failure", withCause(flow.Message, err))
		return
	}
	httpx.RespondError(w, err)
}

func withCause(summary string, err error) string {
	if cause := upstreamCause(err); cause != "" {
		return summary + ": " + cause
	}
	return summary
}

func upstreamCause(err error) string {
	var mailErr *mailer.ProviderError
	if errors.As(err, &mailErr) && mailErr.Message != "" {
		return mailErr.Message
	}
	var aiErr *ai.ProviderError
	if errors.As(err, &aiErr) && aiErr.Message != "" {
		return aiErr.Message
	}
	switch {
	case errors.Is(err, mailer.ErrNotConfigured):
		return "email api key not configured"
	case errors.Is(err, ai.ErrNotConfigured):
		return "ai api key not configured"
	case errors.Is(err, ErrRendererNotConfigured):
		return ErrRendererNotConfigured.Error()
	}
	return ""
}

func asStage(err error) (*StageError, bool) {
	var stage *StageError
	ok := errors.As(err, &stage)
	return stage, ok
}

func asFlow(err error) (*ai.FlowError, bool) {
	var flow *ai.FlowError
	ok := errors.As(err, &flow)
	return flow, ok
}
