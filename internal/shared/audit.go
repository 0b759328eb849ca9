package shared

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions.
const (
	AuditActionProduct  = "Product"
	AuditActionStock    = "Stock"
	AuditActionSale     = "Sale"
	AuditActionLayaway  = "Layaway"
	AuditActionPayment  = "Payment"
	AuditActionSettings = "Settings"
	AuditActionAuth     = "Auth"
	AuditActionReport   = "Report"
)

// auditWriteTimeout bounds the side write once the primary operation committed.
const auditWriteTimeout = 3 * time.Second

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	User    string
	Action  string
	Details string
	At      time.Time
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log AuditLog) error
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if strings.TrimSpace(log.Action) == "" || strings.TrimSpace(log.Details) == "" {
		return errors.New("audit log requires action and details")
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	user := log.User
	if user == "" {
		user = "system"
	}
	_, err := l.pool.Exec(ctx, `INSERT INTO audit_logs (username, action, details, occurred_at) VALUES ($1, $2, $3, COALESCE($4, NOW()))`, user, log.Action, log.Details, at)
	return err
}

// RecordBestEffort writes the entry detached from request cancellation.
// Failures are logged and never returned.
func RecordBestEffort(ctx context.Context, logger *slog.Logger, rec AuditRecorder, entry AuditLog) {
	if rec == nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()
	if err := rec.Record(writeCtx, entry); err != nil && logger != nil {
		logger.Warn("audit write failed",
			slog.String("action", entry.Action),
			slog.String("user", entry.User),
			slog.Any("error", err))
	}
}
