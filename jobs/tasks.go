package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeEmailReport generates and emails the business report.
	TaskTypeEmailReport = "report:email"
)

const (
	emailReportMaxRetry = 3
	emailReportTimeout  = 2 * time.Minute
	// emailReportUniqueFor suppresses duplicate on-demand enqueues.
	emailReportUniqueFor = 10 * time.Minute
)

// EmailReportPayload describes who requested the report.
type EmailReportPayload struct {
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewEmailReportTask constructs an Asynq task.
func NewEmailReportTask(payload EmailReportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeEmailReport, data,
		asynq.MaxRetry(emailReportMaxRetry),
		asynq.Timeout(emailReportTimeout),
		asynq.Queue(QueueDefault),
	), nil
}
