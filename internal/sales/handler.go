package sales

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dukapos/dukapos/internal/platform/httpx"
	"github.com/dukapos/dukapos/internal/rbac"
	"github.com/dukapos/dukapos/internal/shared"
)

// IdempotencyHeader carries the client supplied checkout key.
const IdempotencyHeader = "Idempotency-Key"

// Handler manages till and sales history endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbacMW}
}

// MountPOSRoutes registers the till routes under /pos.
func (h *Handler) MountPOSRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAny(rbac.PermSalesCheckout))
	r.Post("/quote", h.quote)
	r.Post("/checkout", h.checkout)
}

// MountRoutes registers sales history routes under /sales.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAny(rbac.PermSalesView))
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	quote, err := h.service.PriceCart(r.Context(), cashierFrom(r), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.Checkout(r.Context(), cashierFrom(r), req, r.Header.Get(IdempotencyHeader))
	if err != nil {
		h.logger.Info("checkout rejected", slog.String("cashier", shared.ActorFromContext(r.Context())), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		PaymentMethod: PaymentMethod(q.Get("method")),
		Page:          shared.PageFromRequest(r),
	}
	var err error
	if filter.From, err = parseDate(q.Get("from"), "from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = parseDate(q.Get("to"), "to"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To != nil {
		end := filter.To.AddDate(0, 0, 1)
		filter.To = &end
	}
	items, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Sale{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": page})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	sale, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func cashierFrom(r *http.Request) Cashier {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return Cashier{}
	}
	return Cashier{Username: sess.Username(), Role: sess.Role()}
}

// parseDate reads an inclusive YYYY-MM-DD day.
func parseDate(raw, field string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, time.Local)
	if err != nil {
		return nil, shared.NewValidationError(field, "must be a date in YYYY-MM-DD format")
	}
	return &t, nil
}
