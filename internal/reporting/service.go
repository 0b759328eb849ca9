package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukapos/dukapos/internal/ai"
	"github.com/dukapos/dukapos/internal/events"
	"github.com/dukapos/dukapos/internal/mailer"
	"github.com/dukapos/dukapos/internal/observability"
	"github.com/dukapos/dukapos/internal/settings"
	"github.com/dukapos/dukapos/internal/shared"
)

// Flows runs the AI prompt flows.
type Flows interface {
	SuggestReorders(ctx context.Context, in ai.ReorderInput) (ai.ReorderSuggestion, error)
	GenerateReportHTML(ctx context.Context, in ai.ReportInput) (string, error)
}

// Sender delivers an email.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) (string, error)
}

// Renderer converts HTML into a PDF document.
type Renderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// BusinessSource provides the business name, currency and report addresses.
type BusinessSource interface {
	Get(ctx context.Context) (settings.BusinessInfo, error)
}

// Observer records report pipeline outcomes.
type Observer interface {
	ObserveReport(result string)
}

// ServiceConfig tunes the report window and sender fallback.
type ServiceConfig struct {
	WindowDays int
	FromEmail  string
	Location   *time.Location
}

// Deps bundles the service collaborators.
type Deps struct {
	Repo      Repository
	Flows     Flows
	Sender    Sender
	Renderer  Renderer
	Business  BusinessSource
	Audit     shared.AuditRecorder
	Publisher events.Publisher
	Observer  Observer
	Logger    *slog.Logger
	Now       func() time.Time
}

// Service builds snapshots and drives the AI and email pipelines.
type Service struct {
	deps Deps
	cfg  ServiceConfig
}

// NewService constructs Service.
func NewService(deps Deps, cfg ServiceConfig) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Noop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 30
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{deps: deps, cfg: cfg}
}

// Snapshot reads recent sales and current stock into plain text.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, settings.BusinessInfo, error) {
	info, err := s.deps.Business.Get(ctx)
	if err != nil {
		return Snapshot{}, settings.BusinessInfo{}, fmt.Errorf("reporting: business info: %w", err)
	}
	since := s.deps.Now().AddDate(0, 0, -s.cfg.WindowDays)
	sales, err := s.deps.Repo.RecentSales(ctx, since)
	if err != nil {
		return Snapshot{}, info, fmt.Errorf("reporting: recent sales: %w", err)
	}
	stock, err := s.deps.Repo.ProductStock(ctx)
	if err != nil {
		return Snapshot{}, info, fmt.Errorf("reporting: product stock: %w", err)
	}
	return buildSnapshot(sales, stock, info.Currency, s.cfg.WindowDays, s.cfg.Location), info, nil
}

// SuggestReorders asks the model which products to restock.
func (s *Service) SuggestReorders(ctx context.Context, actor string) (ai.ReorderSuggestion, error) {
	snap, _, err := s.Snapshot(ctx)
	if err != nil {
		return ai.ReorderSuggestion{}, err
	}
	out, err := s.deps.Flows.SuggestReorders(ctx, ai.ReorderInput{
		SalesData:      snap.SalesData,
		ProductDetails: snap.ProductDetails,
	})
	if err != nil {
		s.deps.Logger.Warn("reorder suggestions failed", slog.String("user", actor), slog.Any("error", err))
		return ai.ReorderSuggestion{}, err
	}
	return out, nil
}

// SendEmailReport generates the report HTML and emails it to the configured
// recipients. A generation failure never reaches the sender.
func (s *Service) SendEmailReport(ctx context.Context, actor string) (Delivery, error) {
	snap, info, err := s.Snapshot(ctx)
	if err != nil {
		return Delivery{}, err
	}
	msg, err := s.message(info)
	if err != nil {
		return Delivery{}, err
	}

	html, err := s.generate(ctx, info, snap)
	if err != nil {
		s.observe(observability.ReportGenerationFailed)
		s.deps.Logger.Error("email report generation failed", slog.String("user", actor), slog.Any("error", err))
		return Delivery{}, err
	}
	msg.HTML = html

	id, err := s.deps.Sender.Send(ctx, msg)
	if err != nil {
		s.observe(observability.ReportSendFailed)
		s.deps.Logger.Error("email report send failed", slog.String("user", actor), slog.Any("error", err))
		return Delivery{}, &StageError{Stage: StageSend, Err: err}
	}

	delivery := Delivery{ID: id, To: msg.To, Subject: msg.Subject, SentAt: s.deps.Now().UTC()}
	s.observe(observability.ReportSent)
	shared.RecordBestEffort(ctx, s.deps.Logger, s.deps.Audit, shared.AuditLog{
		User:    actor,
		Action:  shared.AuditActionReport,
		Details: fmt.Sprintf("Sent email report to %s", strings.Join(msg.To, ", ")),
	})
	if err := s.deps.Publisher.Publish(ctx, events.TypeReportSent, id, delivery); err != nil {
		s.deps.Logger.Warn("publish event", slog.String("type", events.TypeReportSent), slog.Any("error", err))
	}
	return delivery, nil
}

// PreviewPDF generates the report and renders it as a PDF without sending it.
func (s *Service) PreviewPDF(ctx context.Context) ([]byte, error) {
	if s.deps.Renderer == nil {
		return nil, &StageError{Stage: StageRender, Err: ErrRendererNotConfigured}
	}
	snap, info, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	html, err := s.generate(ctx, info, snap)
	if err != nil {
		return nil, err
	}
	pdf, err := s.deps.Renderer.RenderHTML(ctx, html)
	if err != nil {
		return nil, &StageError{Stage: StageRender, Err: err}
	}
	return pdf, nil
}

func (s *Service) generate(ctx context.Context, info settings.BusinessInfo, snap Snapshot) (string, error) {
	html, err := s.deps.Flows.GenerateReportHTML(ctx, ai.ReportInput{
		BusinessName:    info.Name,
		SalesData:       snap.SalesData,
		LowStockItems:   snap.LowStockItems,
		OutOfStockItems: snap.OutOfStockItems,
	})
	if err != nil {
		return "", &StageError{Stage: StageGeneration, Err: err}
	}
	return html, nil
}

func (s *Service) message(info settings.BusinessInfo) (mailer.Message, error) {
	to := splitAddresses(info.ReportToEmail)
	if len(to) == 0 {
		return mailer.Message{}, shared.NewValidationError("reportToEmail", "set report recipients in settings first")
	}
	from := strings.TrimSpace(info.ReportFromEmail)
	if from == "" {
		from = s.cfg.FromEmail
	}
	if from == "" {
		return mailer.Message{}, shared.NewValidationError("reportFromEmail", "set the report sender address in settings first")
	}
	name := info.Name
	if name == "" {
		name = "Business"
	}
	subject := fmt.Sprintf("%s report for %s", name, s.deps.Now().In(s.cfg.Location).Format("2 Jan 2006"))
	return mailer.Message{From: from, To: to, Subject: subject}, nil
}

func (s *Service) observe(result string) {
	if s.deps.Observer != nil {
		s.deps.Observer.ObserveReport(result)
	}
}

func splitAddresses(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' }) {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
