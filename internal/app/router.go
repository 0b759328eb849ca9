package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	audithttp "github.com/dukapos/dukapos/internal/audit/http"
	"github.com/dukapos/dukapos/internal/auth"
	"github.com/dukapos/dukapos/internal/dashboard"
	"github.com/dukapos/dukapos/internal/layaway"
	"github.com/dukapos/dukapos/internal/observability"
	"github.com/dukapos/dukapos/internal/platform/httpx"
	"github.com/dukapos/dukapos/internal/products"
	"github.com/dukapos/dukapos/internal/reporting"
	"github.com/dukapos/dukapos/internal/sales"
	"github.com/dukapos/dukapos/internal/settings"
	"github.com/dukapos/dukapos/internal/shared"
	"github.com/dukapos/dukapos/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	ProductsHandler  *products.Handler
	SalesHandler     *sales.Handler
	LayawayHandler   *layaway.Handler
	DashboardHandler *dashboard.Handler
	ReportingHandler *reporting.Handler
	AuditHandler     *audithttp.Handler
	SettingsHandler  *settings.Handler
	JobHandler       *jobs.Handler
	Pool             *pgxpool.Pool
	Redis            *redis.Client
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with the default middleware stack.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthz(params.Pool, params.Redis))

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route("/products", params.ProductsHandler.MountRoutes)
	r.Route("/pos", params.SalesHandler.MountPOSRoutes)
	r.Route("/sales", params.SalesHandler.MountRoutes)
	r.Route("/layaways", params.LayawayHandler.MountRoutes)
	r.Route("/reports", func(r chi.Router) {
		if params.DashboardHandler != nil {
			params.DashboardHandler.MountRoutes(r)
		}
		if params.ReportingHandler != nil {
			params.ReportingHandler.MountRoutes(r)
		}
	})
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	r.Route("/settings", params.SettingsHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthz reports whether the store and Redis answer within a short deadline.
func healthz(pool *pgxpool.Pool, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		check := func(name string, p pinger) {
			if p == nil {
				return
			}
			if err := p.Ping(ctx); err != nil {
				status[name] = "down"
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				return
			}
			status[name] = "ok"
		}
		if pool != nil {
			check("postgres", pool)
		}
		if rdb != nil {
			check("redis", redisPinger{rdb})
		}
		httpx.JSON(w, code, status)
	}
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
