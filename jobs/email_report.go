package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/dukapos/dukapos/internal/jobs"
	"github.com/dukapos/dukapos/internal/reporting"
	"github.com/dukapos/dukapos/internal/shared"
)

// SchedulerActor is recorded as the requester of cron-triggered reports.
const SchedulerActor = "scheduler"

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ReportSender runs the email report pipeline.
type ReportSender interface {
	SendEmailReport(ctx context.Context, actor string) (reporting.Delivery, error)
}

// EmailReportJob delivers queued and scheduled email reports.
type EmailReportJob struct {
	Reports ReportSender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewEmailReportJob wires dependencies for the report handler.
func NewEmailReportJob(reports ReportSender, logger *slog.Logger, metrics *jobmetrics.Metrics) *EmailReportJob {
	return &EmailReportJob{Reports: reports, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeEmailReport tasks. Validation failures are not
// retried since they need a settings change first.
func (j *EmailReportJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Reports == nil {
		return errors.New("email report: handler not configured")
	}
	tracker := j.metrics().Track(TaskTypeEmailReport)
	defer func() {
		err = tracker.End(err)
	}()

	var payload EmailReportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("email report: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RequestedBy == "" {
		payload.RequestedBy = SchedulerActor
	}

	logger := j.logger().With(slog.String("requested_by", payload.RequestedBy))
	logger.Info("starting email report")

	delivery, err := j.Reports.SendEmailReport(ctx, payload.RequestedBy)
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			err = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		logger.Error("email report failed", slog.Any("error", err), slog.String("outcome", jobmetrics.Outcome(err)))
		return err
	}

	logger.Info("completed email report", slog.String("email_id", delivery.ID), slog.Int("recipients", len(delivery.To)))
	return nil
}

func (j *EmailReportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeEmailReport))
	}
	return slog.Default().With(slog.String("job", TaskTypeEmailReport))
}

func (j *EmailReportJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
