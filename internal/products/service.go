package products

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dukapos/dukapos/internal/events"
	"github.com/dukapos/dukapos/internal/shared"
)

// Invalidator drops cached aggregates after catalog changes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service coordinates catalog and stock operations.
type Service struct {
	repo      Repository
	audit     shared.AuditRecorder
	publisher events.Publisher
	cache     Invalidator
	logger    *slog.Logger
}

// NewService builds Service.
func NewService(repo Repository, audit shared.AuditRecorder, publisher events.Publisher, cache Invalidator, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, publisher: publisher, cache: cache, logger: logger}
}

// List returns a page of products.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Product, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("products: list: %w", err)
	}
	return items, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total), nil
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.NewValidationError("id", "is invalid")
	}
	return s.repo.Get(ctx, id)
}

// Create adds a product to the catalog.
func (s *Service) Create(ctx context.Context, actor string, in Input) (Product, error) {
	if err := in.validate(); err != nil {
		return Product{}, err
	}
	p, err := s.repo.Create(ctx, in.toProduct())
	if err != nil {
		return Product{}, err
	}
	s.afterWrite(ctx, actor, shared.AuditActionProduct, fmt.Sprintf("Created product %s (%s)", p.Name, p.SKU))
	return p, nil
}

// Update replaces the editable fields of a product.
func (s *Service) Update(ctx context.Context, actor string, id int64, in Input) (Product, error) {
	if id <= 0 {
		return Product{}, shared.NewValidationError("id", "is invalid")
	}
	if err := in.validate(); err != nil {
		return Product{}, err
	}
	p, err := s.repo.Update(ctx, id, in.toProduct())
	if err != nil {
		return Product{}, err
	}
	s.afterWrite(ctx, actor, shared.AuditActionProduct, fmt.Sprintf("Updated product %s (%s)", p.Name, p.SKU))
	return p, nil
}

// Delete removes a product. Historical sale lines keep their name snapshot.
func (s *Service) Delete(ctx context.Context, actor string, id int64) error {
	if id <= 0 {
		return shared.NewValidationError("id", "is invalid")
	}
	p, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.afterWrite(ctx, actor, shared.AuditActionProduct, fmt.Sprintf("Deleted product %s (%s)", p.Name, p.SKU))
	return nil
}

// ReceiveStock increments on-hand stock for goods received.
func (s *Service) ReceiveStock(ctx context.Context, actor string, id int64, in ReceiveInput) (Product, error) {
	if id <= 0 {
		return Product{}, shared.NewValidationError("id", "is invalid")
	}
	if err := shared.Validate(in); err != nil {
		return Product{}, err
	}
	p, err := s.repo.IncrementStock(ctx, id, in.Quantity)
	if err != nil {
		return Product{}, err
	}
	details := fmt.Sprintf("Received %d x %s, stock now %d", in.Quantity, p.Name, p.Stock)
	if in.Note != "" {
		details += " (" + in.Note + ")"
	}
	s.afterWrite(ctx, actor, shared.AuditActionStock, details)
	if err := s.publisher.Publish(ctx, events.TypeStockReceived, strconv.FormatInt(p.ID, 10), map[string]any{
		"productId": p.ID,
		"quantity":  in.Quantity,
		"stock":     p.Stock,
	}); err != nil {
		s.logger.Warn("publish stock received", slog.Any("error", err))
	}
	return p, nil
}

// LowStock lists products at or below their threshold.
func (s *Service) LowStock(ctx context.Context) ([]Product, error) {
	return s.repo.LowStock(ctx)
}

// Categories lists distinct non-empty categories.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.repo.Categories(ctx)
}

func (s *Service) afterWrite(ctx context.Context, actor, action, details string) {
	shared.RecordBestEffort(ctx, s.logger, s.audit, shared.AuditLog{User: actor, Action: action, Details: details})
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("dashboard cache bump", slog.Any("error", err))
		}
	}
}
