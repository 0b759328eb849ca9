package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/dukapos/dukapos/internal/jobs"
	"github.com/dukapos/dukapos/internal/reporting"
	"github.com/dukapos/dukapos/internal/shared"
)

type stubReports struct {
	actors []string
	err    error
}

func (s *stubReports) SendEmailReport(ctx context.Context, actor string) (reporting.Delivery, error) {
	s.actors = append(s.actors, actor)
	if s.err != nil {
		return reporting.Delivery{}, s.err
	}
	return reporting.Delivery{ID: "email_1", To: []string{"owner@duka.test"}}, nil
}

func newJob(t *testing.T, reports ReportSender) (*EmailReportJob, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewEmailReportJob(reports, nil, jobmetrics.NewMetrics(reg)), reg
}

func TestEmailReportTask(t *testing.T) {
	task, err := NewEmailReportTask(EmailReportPayload{RequestedBy: "mary"})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeEmailReport, task.Type())

	var payload EmailReportPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "mary", payload.RequestedBy)
}

func TestEmailReportJobSends(t *testing.T) {
	reports := &stubReports{}
	job, reg := newJob(t, reports)

	task, err := NewEmailReportTask(EmailReportPayload{RequestedBy: "mary"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, []string{"mary"}, reports.actors)

	count, err := testutil.GatherAndCount(reg, "duka_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assertOutcome(t, reg, jobmetrics.OutcomeSucceeded)
}

// assertOutcome checks that exactly one run was recorded, under outcome.
func assertOutcome(t *testing.T, reg *prometheus.Registry, outcome string) {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "duka_jobs_total" {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			if lp.GetName() == "outcome" {
				assert.Equal(t, outcome, lp.GetValue())
				return
			}
		}
	}
	t.Fatalf("no duka_jobs_total sample recorded")
}

func TestEmailReportJobDefaultsToScheduler(t *testing.T) {
	reports := &stubReports{}
	job, _ := newJob(t, reports)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskTypeEmailReport, []byte(`{}`))))
	assert.Equal(t, []string{SchedulerActor}, reports.actors)
}

func TestEmailReportJobRetryPolicy(t *testing.T) {
	upstream := &stubReports{err: &reporting.StageError{Stage: reporting.StageSend, Err: errors.New("provider down")}}
	job, reg := newJob(t, upstream)
	err := job.Handle(context.Background(), asynq.NewTask(TaskTypeEmailReport, []byte(`{"requested_by":"mary"}`)))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
	assertOutcome(t, reg, jobmetrics.OutcomeRetry)

	invalid := &stubReports{err: shared.NewValidationError("reportToEmail", "set report recipients in settings first")}
	job, reg = newJob(t, invalid)
	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeEmailReport, []byte(`{"requested_by":"mary"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, shared.ErrValidation)
	assertOutcome(t, reg, jobmetrics.OutcomeSkipRetry)

	job, reg = newJob(t, &stubReports{})
	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeEmailReport, []byte(`not json`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assertOutcome(t, reg, jobmetrics.OutcomeSkipRetry)
}

func TestEmailReportCron(t *testing.T) {
	entries, err := EmailReportCron("")
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = EmailReportCron("0 18 * * *")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, TaskTypeEmailReport, entries[0].Task.Type())
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsHealth(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", h.MountRoutes)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rec
	}

	rec := serve(NewHandler(nil, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0,"scheduled":0}`, rec.Body.String())

	rec = serve(NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 2, Retry: 1}}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":2,"active":0,"retry":1,"scheduled":0}`, rec.Body.String())

	rec = serve(NewHandler(stubInspector{err: asynq.ErrQueueNotFound}, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(NewHandler(stubInspector{err: errors.New("redis down")}, nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
