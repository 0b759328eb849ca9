package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dukapos/dukapos/internal/app"
	"github.com/dukapos/dukapos/internal/audit"
	audithttp "github.com/dukapos/dukapos/internal/audit/http"
	"github.com/dukapos/dukapos/internal/auth"
	"github.com/dukapos/dukapos/internal/dashboard"
	"github.com/dukapos/dukapos/internal/layaway"
	"github.com/dukapos/dukapos/internal/observability"
	"github.com/dukapos/dukapos/internal/platform/cache"
	"github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/internal/products"
	"github.com/dukapos/dukapos/internal/rbac"
	"github.com/dukapos/dukapos/internal/reporting"
	"github.com/dukapos/dukapos/internal/sales"
	"github.com/dukapos/dukapos/internal/settings"
	"github.com/dukapos/dukapos/internal/shared"
	"github.com/dukapos/dukapos/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "duka_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	rbacMiddleware := rbac.Middleware{Logger: logger}
	metrics := observability.NewMetrics()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	publisher, closePublisher := app.NewPublisher(cfg, logger)
	defer closePublisher()

	dashboardCache := app.NewDashboardCache(cfg, redisClient)
	settingsService := app.NewSettingsService(cfg, dbpool, redisClient, auditLogger, logger)
	settingsHandler := settings.NewHandler(logger, settingsService, rbacMiddleware)

	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, settingsService, auditLogger, cfg.UnlockTTL)

	productService := products.NewService(products.NewRepository(dbpool), auditLogger, publisher, dashboardCache, logger)
	productHandler := products.NewHandler(logger, productService, rbacMiddleware)

	salesService := sales.NewService(sales.Deps{
		Repo:        sales.NewRepository(dbpool),
		Overrides:   authService,
		Tax:         settingsService,
		Audit:       auditLogger,
		Idempotency: idempotencyStore,
		Publisher:   publisher,
		Cache:       dashboardCache,
		Observer:    metrics,
		Logger:      logger,
	}, sales.ServiceConfig{
		AlwaysVerifyOverride: cfg.OverrideRequiresSecondCredential(),
		DefaultTaxRate:       cfg.DefaultTaxRate,
	})
	salesHandler := sales.NewHandler(logger, salesService, rbacMiddleware)

	layawayService := layaway.NewService(layaway.NewRepository(dbpool), auditLogger, publisher, dashboardCache, metrics, logger)
	layawayHandler := layaway.NewHandler(logger, layawayService, rbacMiddleware)

	dashboardService := dashboard.NewService(dashboard.NewRepository(dbpool), dashboardCache, logger, cfg.Location())
	dashboardHandler := dashboard.NewHandler(logger, dashboardService, rbacMiddleware)

	reportingService := app.NewReportingService(cfg, app.ReportingDeps{
		Pool:      dbpool,
		Settings:  settingsService,
		Audit:     auditLogger,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    logger,
	})

	redisOpts := cfg.AsynqRedisOpt()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	reportingHandler := reporting.NewHandler(logger, reportingService, jobClient, rbacMiddleware)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audithttp.NewHandler(logger, auditService, rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		ProductsHandler:  productHandler,
		SalesHandler:     salesHandler,
		LayawayHandler:   layawayHandler,
		DashboardHandler: dashboardHandler,
		ReportingHandler: reportingHandler,
		AuditHandler:     auditHandler,
		SettingsHandler:  settingsHandler,
		JobHandler:       jobHandler,
		Pool:             dbpool,
		Redis:            redisClient,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	go purgeIdempotencyKeys(ctx, idempotencyStore, logger)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// purgeIdempotencyKeys drops checkout keys older than a day, hourly.
func purgeIdempotencyKeys(ctx context.Context, store *shared.IdempotencyStore, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Cleanup(ctx, 24*time.Hour); err != nil {
				logger.Warn("idempotency cleanup", slog.Any("error", err))
			}
		}
	}
}
