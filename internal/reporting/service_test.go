package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukapos/dukapos/internal/ai"
	"github.com/dukapos/dukapos/internal/events"
	"github.com/dukapos/dukapos/internal/mailer"
	"github.com/dukapos/dukapos/internal/observability"
	"github.com/dukapos/dukapos/internal/settings"
	"github.com/dukapos/dukapos/internal/shared"
)

var fixedNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type memoryRepo struct {
	sales []SaleLine
	stock []StockLine
	since time.Time
	err   error
}

func (m *memoryRepo) RecentSales(ctx context.Context, since time.Time) ([]SaleLine, error) {
	m.since = since
	if m.err != nil {
		return nil, m.err
	}
	var out []SaleLine
	for _, l := range m.sales {
		if !l.SoldAt.Before(since) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryRepo) ProductStock(ctx context.Context) ([]StockLine, error) {
	return m.stock, m.err
}

type stubFlows struct {
	reorder    ai.ReorderSuggestion
	reorderErr error
	html       string
	htmlErr    error
	lastReport ai.ReportInput
	lastOrder  ai.ReorderInput
}

func (s *stubFlows) SuggestReorders(ctx context.Context, in ai.ReorderInput) (ai.ReorderSuggestion, error) {
	s.lastOrder = in
	return s.reorder, s.reorderErr
}

func (s *stubFlows) GenerateReportHTML(ctx context.Context, in ai.ReportInput) (string, error) {
	s.lastReport = in
	return s.html, s.htmlErr
}

type stubSender struct {
	calls []mailer.Message
	id    string
	err   error
}

func (s *stubSender) Send(ctx context.Context, msg mailer.Message) (string, error) {
	s.calls = append(s.calls, msg)
	return s.id, s.err
}

type stubRenderer struct {
	html string
	err  error
}

func (s *stubRenderer) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	s.html = html
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF-1.7"), nil
}

type staticBusiness settings.BusinessInfo

func (b staticBusiness) Get(ctx context.Context) (settings.BusinessInfo, error) {
	return settings.BusinessInfo(b), nil
}

type recordingAudit struct {
	entries []shared.AuditLog
}

func (r *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	r.entries = append(r.entries, log)
	return nil
}

type recordingObserver struct {
	results []string
}

func (r *recordingObserver) ObserveReport(result string) {
	r.results = append(r.results, result)
}

type fixture struct {
	svc      *Service
	repo     *memoryRepo
	flows    *stubFlows
	sender   *stubSender
	renderer *stubRenderer
	audit    *recordingAudit
	observer *recordingObserver
	events   *events.Memory
}

func newFixture(info settings.BusinessInfo) *fixture {
	f := &fixture{
		repo: &memoryRepo{
			sales: []SaleLine{
				{SaleID: 1, SoldAt: fixedNow.AddDate(0, 0, -40), Method: "Cash", Product: "Old Kettle", Quantity: 1, Price: decimal.NewFromInt(500)},
				{SaleID: 7, SoldAt: fixedNow.Add(-2 * time.Hour), Method: "Cash", Product: "Blender X2", Quantity: 2, Price: decimal.NewFromInt(900)},
				{SaleID: 8, SoldAt: fixedNow.Add(-time.Hour), Method: "M-Pesa", Product: "Rice 2kg", Quantity: 3, Price: decimal.NewFromInt(250)},
			},
			stock: []StockLine{
				{Name: "Blender X2", SKU: "BLX2", Stock: 3, Threshold: 5, Supplier: "Acme"},
				{Name: "Fridge 200L", SKU: "FR200", Stock: 0, Threshold: 1},
				{Name: "Rice 2kg", SKU: "RICE2", Stock: 40, Threshold: 10, Supplier: "Mills"},
			},
		},
		flows:    &stubFlows{html: "<h1>Daily report</h1>"},
		sender:   &stubSender{id: "email_123"},
		renderer: &stubRenderer{},
		audit:    &recordingAudit{},
		observer: &recordingObserver{},
		events:   &events.Memory{},
	}
	f.svc = NewService(Deps{
		Repo:      f.repo,
		Flows:     f.flows,
		Sender:    f.sender,
		Renderer:  f.renderer,
		Business:  staticBusiness(info),
		Audit:     f.audit,
		Publisher: f.events,
		Observer:  f.observer,
		Now:       func() time.Time { return fixedNow },
	}, ServiceConfig{WindowDays: 30})
	return f
}

func configuredBusiness() settings.BusinessInfo {
	return settings.BusinessInfo{
		Name:            "Duka Ya Mama",
		Currency:        "KES",
		ReportFromEmail: "reports@duka.test",
		ReportToEmail:   "owner@duka.test, manager@duka.test",
	}
}

func TestSnapshotText(t *testing.T) {
	f := newFixture(configuredBusiness())

	snap, _, err := f.svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixedNow.AddDate(0, 0, -30), f.repo.since)
	assert.Equal(t, 2, snap.SaleCount)
	assert.True(t, decimal.NewFromInt(2550).Equal(snap.Revenue), snap.Revenue.String())
	assert.Contains(t, snap.SalesData, "2 sales totalling KES 2,550.00 in the last 30 days.")
	assert.Contains(t, snap.SalesData, "Blender X2 x2 @ KES 900.00")
	assert.NotContains(t, snap.SalesData, "Old Kettle")
	assert.Contains(t, snap.ProductDetails, "Fridge 200L (SKU FR200): stock 0, low-stock threshold 1, supplier unknown")
	assert.Equal(t, "Blender X2: 3 left, threshold 5", snap.LowStockItems)
	assert.Equal(t, "Fridge 200L (supplier unknown)", snap.OutOfStockItems)
}

func TestSnapshotWithoutData(t *testing.T) {
	snap := buildSnapshot(nil, nil, "", 7, nil)
	assert.Equal(t, "No sales in the last 7 days.", snap.SalesData)
	assert.Equal(t, "None", snap.ProductDetails)
	assert.Equal(t, "None", snap.LowStockItems)
	assert.Equal(t, "None", snap.OutOfStockItems)
}

func TestSuggestReordersPassesSnapshot(t *testing.T) {
	f := newFixture(configuredBusiness())
	f.flows.reorder = ai.ReorderSuggestion{ItemsToReorder: []ai.ReorderItem{{ProductName: "Blender X2", Quantity: 10, Reason: "selling fast"}}}

	out, err := f.svc.SuggestReorders(context.Background(), "mary")
	require.NoError(t, err)
	require.Len(t, out.ItemsToReorder, 1)
	assert.Contains(t, f.flows.lastOrder.ProductDetails, "Blender X2 (SKU BLX2)")
	assert.Contains(t, f.flows.lastOrder.SalesData, "Rice 2kg")
}

func TestSuggestReordersFlowFailure(t *testing.T) {
	f := newFixture(configuredBusiness())
	f.flows.reorderErr = &ai.FlowError{Flow: "reorder", Message: "failed to generate reorder suggestions", Err: errors.New("quota")}

	_, err := f.svc.SuggestReorders(context.Background(), "mary")
	require.ErrorIs(t, err, shared.ErrUpstream)
}

func TestSendEmailReport(t *testing.T) {
	f := newFixture(configuredBusiness())

	delivery, err := f.svc.SendEmailReport(context.Background(), "mary")
	require.NoError(t, err)
	assert.Equal(t, "email_123", delivery.ID)
	assert.Equal(t, []string{"owner@duka.test", "manager@duka.test"}, delivery.To)

	require.Len(t, f.sender.calls, 1)
	msg := f.sender.calls[0]
	assert.Equal(t, "reports@duka.test", msg.From)
	assert.Equal(t, "<h1>Daily report</h1>", msg.HTML)
	assert.Equal(t, "Duka Ya Mama report for 18 Oct 2026", msg.Subject)
	assert.Equal(t, "Duka Ya Mama", f.flows.lastReport.BusinessName)
	assert.Equal(t, "Fridge 200L (supplier unknown)", f.flows.lastReport.OutOfStockItems)

	assert.Equal(t, []string{observability.ReportSent}, f.observer.results)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, shared.AuditActionReport, f.audit.entries[0].Action)
	assert.Equal(t, "mary", f.audit.entries[0].User)
	assert.Equal(t, []string{events.TypeReportSent}, f.events.Types())
}

func TestSendEmailReportGenerationFailureSkipsSend(t *testing.T) {
	f := newFixture(configuredBusiness())
	f.flows.htmlErr = &ai.FlowError{Flow: "report", Message: "failed to generate email report", Err: errors.New("model timeout")}

	_, err := f.svc.SendEmailReport(context.Background(), "mary")
	require.Error(t, err)

	stage, ok := asStage(err)
	require.True(t, ok)
	assert.Equal(t, StageGeneration, stage.Stage)
	assert.Equal(t, "report generation failed", stage.Message())
	assert.NotContains(t, err.Error(), "not sent")
	assert.ErrorIs(t, err, shared.ErrUpstream)

	assert.Empty(t, f.sender.calls)
	assert.Equal(t, []string{observability.ReportGenerationFailed}, f.observer.results)
	assert.Empty(t, f.audit.entries)
	assert.Empty(t, f.events.Types())
}

func TestSendEmailReportSendFailure(t *testing.T) {
	f := newFixture(configuredBusiness())
	f.sender.err = errors.New("provider rejected: domain not verified")

	_, err := f.svc.SendEmailReport(context.Background(), "mary")
	stage, ok := asStage(err)
	require.True(t, ok)
	assert.Equal(t, StageSend, stage.Stage)
	assert.Equal(t, "report generated but not sent", stage.Message())
	assert.Len(t, f.sender.calls, 1)
	assert.Equal(t, []string{observability.ReportSendFailed}, f.observer.results)
	assert.Empty(t, f.audit.entries)
}

func TestSendEmailReportRequiresAddresses(t *testing.T) {
	info := configuredBusiness()
	info.ReportToEmail = " , "
	f := newFixture(info)

	_, err := f.svc.SendEmailReport(context.Background(), "mary")
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "reportToEmail")
	assert.Empty(t, f.sender.calls)
	assert.Empty(t, f.observer.results)

	info = configuredBusiness()
	info.ReportFromEmail = ""
	f = newFixture(info)
	_, err = f.svc.SendEmailReport(context.Background(), "mary")
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "reportFromEmail")
}

func TestSendEmailReportFallsBackToConfiguredSender(t *testing.T) {
	info := configuredBusiness()
	info.ReportFromEmail = ""
	f := newFixture(info)
	f.svc.cfg.FromEmail = "noreply@duka.test"

	_, err := f.svc.SendEmailReport(context.Background(), "scheduler")
	require.NoError(t, err)
	assert.Equal(t, "noreply@duka.test", f.sender.calls[0].From)
}

func TestPreviewPDF(t *testing.T) {
	f := newFixture(configuredBusiness())

	pdf, err := f.svc.PreviewPDF(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(pdf))
	assert.Equal(t, "<h1>Daily report</h1>", f.renderer.html)
	assert.Empty(t, f.sender.calls)

	f.renderer.err = errors.New("gotenberg down")
	_, err = f.svc.PreviewPDF(context.Background())
	stage, ok := asStage(err)
	require.True(t, ok)
	assert.Equal(t, StageRender, stage.Stage)
}

func TestSnapshotStoreFailure(t *testing.T) {
	f := newFixture(configuredBusiness())
	f.repo.err = errors.New("connection reset")

	_, err := f.svc.SendEmailReport(context.Background(), "mary")
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrUpstream)
	assert.Empty(t, f.sender.calls)
	assert.Empty(t, f.observer.results)
}
