package app

import (
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dukapos/dukapos/internal/ai"
	"github.com/dukapos/dukapos/internal/events"
	"github.com/dukapos/dukapos/internal/mailer"
	"github.com/dukapos/dukapos/internal/observability"
	"github.com/dukapos/dukapos/internal/platform/cache"
	"github.com/dukapos/dukapos/internal/platform/pdf"
	"github.com/dukapos/dukapos/internal/reporting"
	"github.com/dukapos/dukapos/internal/settings"
	"github.com/dukapos/dukapos/internal/shared"
)

// Cache namespaces.
const (
	settingsCacheNamespace  = "duka:settings"
	dashboardCacheNamespace = "duka:dashboard"
)

// RedisOptions returns the connection settings for the shared Redis client.
func (c *Config) RedisOptions() cache.Options {
	return cache.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// AsynqRedisOpt points the job queue at the same Redis instance.
func (c *Config) AsynqRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// NewSettingsCache returns the read-through cache for business settings.
func NewSettingsCache(cfg *Config, rdb *redis.Client) *cache.Versioned {
	return cache.NewVersioned(rdb, settingsCacheNamespace, cfg.CacheTTL)
}

// NewDashboardCache returns the cache holding dashboard aggregates.
func NewDashboardCache(cfg *Config, rdb *redis.Client) *cache.Versioned {
	return cache.NewVersioned(rdb, dashboardCacheNamespace, cfg.CacheTTL)
}

// NewSettingsService wires the settings store and its cache.
func NewSettingsService(cfg *Config, pool *pgxpool.Pool, rdb *redis.Client, audit shared.AuditRecorder, logger *slog.Logger) *settings.Service {
	return settings.NewService(settings.NewRepository(pool), NewSettingsCache(cfg, rdb), audit, logger, settings.Defaults{
		Currency: cfg.DefaultCurrency,
		TaxRate:  cfg.DefaultTaxRate,
	})
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise. The returned func flushes pending events.
func NewPublisher(cfg *Config, logger *slog.Logger) (events.Publisher, func()) {
	brokers := cfg.KafkaBrokerList()
	if len(brokers) == 0 {
		logger.Info("event publishing disabled", slog.String("reason", "KAFKA_BROKERS empty"))
		return events.Noop{}, func() {}
	}
	pub := events.NewKafkaPublisher(brokers, cfg.KafkaTopic, 0, logger)
	pub.Start()
	logger.Info("event publishing enabled", slog.String("topic", cfg.KafkaTopic), slog.Int("brokers", len(brokers)))
	return pub, pub.Close
}

// ReportingDeps carries the shared collaborators of the reporting service.
type ReportingDeps struct {
	Pool      *pgxpool.Pool
	Settings  reporting.BusinessSource
	Audit     shared.AuditRecorder
	Publisher events.Publisher
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// NewReportingService wires the AI flows, the mailer and the PDF renderer.
func NewReportingService(cfg *Config, deps ReportingDeps) *reporting.Service {
	flows := ai.NewFlows(ai.NewClient(ai.Config{
		BaseURL: cfg.AIBaseURL,
		APIKey:  cfg.AIAPIKey,
		Model:   cfg.AIModel,
		Timeout: cfg.AITimeout,
	}))
	sender := mailer.NewClient(mailer.Config{
		BaseURL: cfg.EmailBaseURL,
		APIKey:  cfg.EmailAPIKey,
		Timeout: cfg.EmailTimeout,
	})
	var renderer reporting.Renderer
	if cfg.GotenbergURL != "" {
		renderer = pdf.NewClient(cfg.GotenbergURL, cfg.GotenbergTimeout)
	}
	return reporting.NewService(reporting.Deps{
		Repo:      reporting.NewRepository(deps.Pool),
		Flows:     flows,
		Sender:    sender,
		Renderer:  renderer,
		Business:  deps.Settings,
		Audit:     deps.Audit,
		Publisher: deps.Publisher,
		Observer:  deps.Metrics,
		Logger:    deps.Logger,
	}, reporting.ServiceConfig{
		WindowDays: cfg.ReportWindowDays,
		FromEmail:  cfg.EmailFrom,
		Location:   cfg.Location(),
	})
}
