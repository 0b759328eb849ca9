package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/events"
	"github.com/dukapos/dukapos/internal/observability"
	"github.com/dukapos/dukapos/internal/rbac"
	"github.com/dukapos/dukapos/internal/shared"
)

const idempotencyModule = "sales.checkout"

// ErrInsufficientStock indicates a cart line exceeds on-hand stock.
var ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", shared.ErrConflict)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ProductsByIDs(ctx context.Context, ids []int64) (map[int64]ProductSnapshot, error)
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error)
	GetSale(ctx context.Context, id int64) (Sale, error)
}

// OverrideAuthorizer verifies manager credentials for below-floor prices.
type OverrideAuthorizer interface {
	AuthorizeOverride(ctx context.Context, username, password string) (string, error)
}

// TaxRateSource supplies the current display tax rate.
type TaxRateSource interface {
	TaxRate(ctx context.Context) (float64, error)
}

// ErrSelfApproval rejects an override signed with the cashier's own credentials.
var ErrSelfApproval = fmt.Errorf("%w: override must be approved by a different manager", shared.ErrForbidden)

// Observer receives checkout outcomes.
type Observer interface {
	ObserveCheckout(outcome, method string, total float64)
}

// Invalidator drops cached aggregates after a sale.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// ServiceConfig groups policy settings.
type ServiceConfig struct {
	// AlwaysVerifyOverride requires a credential pair even when the cashier is a manager.
	AlwaysVerifyOverride bool
	DefaultTaxRate       float64
}

// Deps groups the collaborators of Service. Only Repo and Overrides are required.
type Deps struct {
	Repo        RepositoryPort
	Overrides   OverrideAuthorizer
	Tax         TaxRateSource
	Audit       shared.AuditRecorder
	Idempotency shared.IdempotencyGuard
	Publisher   events.Publisher
	Cache       Invalidator
	Observer    Observer
	Logger      *slog.Logger
}

// Service coordinates checkout and sales history.
type Service struct {
	Deps
	cfg ServiceConfig
}

// NewService builds Service.
func NewService(deps Deps, cfg ServiceConfig) *Service {
	if deps.Publisher == nil {
		deps.Publisher = events.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{Deps: deps, cfg: cfg}
}

// Checkout records one sale and decrements stock for every line atomically.
func (s *Service) Checkout(ctx context.Context, cashier Cashier, req CheckoutRequest, idempotencyKey string) (sale Sale, err error) {
	defer func() {
		if err != nil {
			s.observe(checkoutOutcome(err), req.PaymentMethod, decimal.Zero)
		}
	}()

	lines, err := normalizeLines(req.Lines, func() error { return shared.Validate(req) })
	if err != nil {
		return Sale{}, err
	}
	total := cartTotal(lines)
	received, change, err := settle(req.PaymentMethod, req.AmountReceived, total)
	if err != nil {
		return Sale{}, err
	}

	snapshots, err := s.snapshots(ctx, lines)
	if err != nil {
		return Sale{}, err
	}
	approvedBy, err := s.approve(ctx, cashier, req.Override, belowFloor(lines, snapshots))
	if err != nil {
		return Sale{}, err
	}

	customer := req.CustomerName
	if customer == "" {
		customer = WalkInCustomer
	}
	sale = Sale{
		CustomerName:       customer,
		PaymentMethod:      req.PaymentMethod,
		Total:              total,
		TaxAmount:          TaxPortion(total, s.taxRate(ctx)),
		AmountReceived:     received,
		Change:             change,
		Cashier:            cashier.Username,
		OverrideApprovedBy: approvedBy,
	}

	if idempotencyKey != "" && s.Idempotency != nil {
		if err := s.Idempotency.CheckAndInsert(ctx, idempotencyKey, idempotencyModule); err != nil {
			return Sale{}, err
		}
		defer func() {
			if err != nil {
				if delErr := s.Idempotency.Delete(context.WithoutCancel(ctx), idempotencyKey); delErr != nil {
					s.Logger.Warn("release idempotency key", slog.Any("error", delErr))
				}
			}
		}()
	}

	err = s.Repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		items := make([]SaleItem, 0, len(lines))
		for _, line := range lines {
			snap, ok, err := tx.DecrementStock(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return fmt.Errorf("decrement stock for product %d: %w", line.ProductID, err)
			}
			if !ok {
				return s.missingStockError(ctx, tx, line, snapshots[line.ProductID])
			}
			if line.AgreedPrice.LessThan(snap.MinPrice) && approvedBy == "" {
				return overrideRequired(snap.Name)
			}
			items = append(items, SaleItem{
				ProductID:    line.ProductID,
				Name:         snap.Name,
				Quantity:     line.Quantity,
				Price:        line.AgreedPrice,
				CatalogPrice: snap.Price,
			})
		}
		id, soldAt, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		if err := tx.InsertSaleItems(ctx, id, items); err != nil {
			return fmt.Errorf("insert sale items: %w", err)
		}
		sale.ID, sale.Date, sale.Items = id, soldAt, items
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return Sale{}, err
		}
		return Sale{}, fmt.Errorf("sales: checkout: %w", err)
	}

	s.afterCheckout(ctx, sale)
	return sale, nil
}

// PriceCart validates a cart against current stock and price floors without writing.
func (s *Service) PriceCart(ctx context.Context, cashier Cashier, req QuoteRequest) (Quote, error) {
	lines, err := normalizeLines(req.Lines, func() error { return shared.Validate(req) })
	if err != nil {
		return Quote{}, err
	}
	snapshots, err := s.snapshots(ctx, lines)
	if err != nil {
		return Quote{}, err
	}

	quote := Quote{Lines: make([]QuoteLine, 0, len(lines))}
	for _, line := range lines {
		snap := snapshots[line.ProductID]
		if line.Quantity > snap.Stock {
			return Quote{}, fmt.Errorf("%w for %s: %d available", ErrInsufficientStock, snap.Name, snap.Stock)
		}
		ql := QuoteLine{
			ProductID:    line.ProductID,
			Name:         snap.Name,
			Quantity:     line.Quantity,
			AgreedPrice:  line.AgreedPrice,
			CatalogPrice: snap.Price,
			MinPrice:     snap.MinPrice,
			Available:    snap.Stock,
			BelowFloor:   line.AgreedPrice.LessThan(snap.MinPrice),
			LineTotal:    shared.LineTotal(line.AgreedPrice, line.Quantity),
		}
		quote.Lines = append(quote.Lines, ql)
	}
	quote.Total = cartTotal(lines)
	quote.TaxAmount = TaxPortion(quote.Total, s.taxRate(ctx))

	below := belowFloor(lines, snapshots)
	if below == "" {
		return quote, nil
	}
	approvedBy, err := s.approve(ctx, cashier, req.Override, below)
	if err != nil {
		var vErr *shared.ValidationError
		if errors.As(err, &vErr) {
			quote.RequiresOverride = true
			return quote, nil
		}
		return Quote{}, err
	}
	quote.ApprovedBy = approvedBy
	return quote, nil
}

// List returns a page of sales, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Sale, shared.Pagination, error) {
	if filter.PaymentMethod != "" && !validMethod(filter.PaymentMethod) {
		return nil, shared.Pagination{}, shared.NewValidationError("method", "must be one of: Cash M-Pesa Card")
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, shared.Pagination{}, shared.NewValidationError("to", "must not be before from")
	}
	items, total, err := s.Repo.ListSales(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("sales: list: %w", err)
	}
	return items, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total), nil
}

// Get returns one sale with its items.
func (s *Service) Get(ctx context.Context, id int64) (Sale, error) {
	if id <= 0 {
		return Sale{}, shared.NewValidationError("id", "is invalid")
	}
	return s.Repo.GetSale(ctx, id)
}

// approve resolves who authorised a below-floor price. below names the first
// offending product, empty when every line respects its floor.
func (s *Service) approve(ctx context.Context, cashier Cashier, override *Override, below string) (string, error) {
	if below == "" {
		return "", nil
	}
	if !s.cfg.AlwaysVerifyOverride {
		if role, ok := rbac.ParseRole(cashier.Role); ok && role.CanApproveOverride() {
			return cashier.Username, nil
		}
	}
	if override == nil || override.Username == "" {
		return "", overrideRequired(below)
	}
	if strings.EqualFold(strings.TrimSpace(override.Username), cashier.Username) {
		return "", ErrSelfApproval
	}
	if s.Overrides == nil {
		return "", fmt.Errorf("%w: override verification unavailable", shared.ErrForbidden)
	}
	return s.Overrides.AuthorizeOverride(ctx, override.Username, override.Password)
}

func (s *Service) snapshots(ctx context.Context, lines []CartLine) (map[int64]ProductSnapshot, error) {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	snaps, err := s.Repo.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("sales: load products: %w", err)
	}
	for _, id := range ids {
		if _, ok := snaps[id]; !ok {
			return nil, fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
		}
	}
	return snaps, nil
}

func (s *Service) missingStockError(ctx context.Context, tx TxRepository, line CartLine, snap ProductSnapshot) error {
	exists, err := tx.ProductExists(ctx, line.ProductID)
	if err != nil {
		return fmt.Errorf("check product %d: %w", line.ProductID, err)
	}
	if !exists {
		return fmt.Errorf("%w: product %d", shared.ErrNotFound, line.ProductID)
	}
	name := snap.Name
	if name == "" {
		name = "product " + strconv.FormatInt(line.ProductID, 10)
	}
	return fmt.Errorf("%w for %s: requested %d", ErrInsufficientStock, name, line.Quantity)
}

func (s *Service) taxRate(ctx context.Context) float64 {
	if s.Tax == nil {
		return s.cfg.DefaultTaxRate
	}
	rate, err := s.Tax.TaxRate(ctx)
	if err != nil {
		s.Logger.Warn("tax rate lookup failed, using default", slog.Any("error", err))
		return s.cfg.DefaultTaxRate
	}
	return rate
}

func (s *Service) afterCheckout(ctx context.Context, sale Sale) {
	details := fmt.Sprintf("Sale #%d total %s by %s", sale.ID, shared.FormatMoney(sale.Total), sale.Cashier)
	if sale.OverrideApprovedBy != "" {
		details += fmt.Sprintf(" (price override approved by %s)", sale.OverrideApprovedBy)
	}
	shared.RecordBestEffort(ctx, s.Logger, s.Audit, shared.AuditLog{
		User:    sale.Cashier,
		Action:  shared.AuditActionSale,
		Details: details,
	})
	if err := s.Publisher.Publish(ctx, events.TypeSaleCompleted, strconv.FormatInt(sale.ID, 10), sale); err != nil {
		s.Logger.Warn("publish sale completed", slog.Int64("sale_id", sale.ID), slog.Any("error", err))
	}
	if s.Cache != nil {
		if err := s.Cache.Bump(ctx); err != nil {
			s.Logger.Warn("dashboard cache bump", slog.Any("error", err))
		}
	}
	if sale.OverrideApprovedBy != "" {
		s.observe(observability.OutcomeOverrideApproved, sale.PaymentMethod, decimal.Zero)
	}
	s.observe(observability.OutcomeCompleted, sale.PaymentMethod, sale.Total)
}

func (s *Service) observe(outcome string, method PaymentMethod, total decimal.Decimal) {
	if s.Observer != nil {
		s.Observer.ObserveCheckout(outcome, string(method), total.InexactFloat64())
	}
}

func checkoutOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return observability.OutcomeInsufficient
	case isDomainError(err):
		return observability.OutcomeRejected
	default:
		return observability.OutcomeFailed
	}
}

func isDomainError(err error) bool {
	return errors.Is(err, shared.ErrValidation) ||
		errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrConflict) ||
		errors.Is(err, shared.ErrForbidden)
}

func overrideRequired(product string) error {
	return &shared.ValidationError{Fields: map[string]string{
		"override": "manager override required: agreed price below minimum for " + product,
	}}
}

// normalizeLines validates the request and merges repeated products sharing one agreed price.
func normalizeLines(lines []CartLine, validate func() error) ([]CartLine, error) {
	if err := validate(); err != nil {
		return nil, err
	}
	merged := make([]CartLine, 0, len(lines))
	index := make(map[int64]int, len(lines))
	for i, line := range lines {
		pos, seen := index[line.ProductID]
		if !seen {
			index[line.ProductID] = len(merged)
			merged = append(merged, line)
			continue
		}
		if !merged[pos].AgreedPrice.Equal(line.AgreedPrice) {
			return nil, shared.NewValidationError(fmt.Sprintf("lines[%d].agreedPrice", i),
				"conflicts with an earlier line for the same product")
		}
		merged[pos].Quantity += line.Quantity
	}
	return merged, nil
}

// cartTotal sums the same unit prices that are stored on the sale items, so
// total always equals the sum of item price times quantity.
func cartTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(shared.LineTotal(l.AgreedPrice, l.Quantity))
	}
	return total
}

// settle derives amount received and change for the tender.
func settle(method PaymentMethod, received, total decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if method != PaymentCash && received.IsZero() {
		received = total
	}
	if received.LessThan(total) {
		return decimal.Zero, decimal.Zero, shared.NewValidationError("amountReceived", "must cover the sale total")
	}
	return received, received.Sub(total), nil
}

func belowFloor(lines []CartLine, snaps map[int64]ProductSnapshot) string {
	for _, l := range lines {
		snap := snaps[l.ProductID]
		if l.AgreedPrice.LessThan(snap.MinPrice) {
			return snap.Name
		}
	}
	return ""
}

func validMethod(m PaymentMethod) bool {
	return m == PaymentCash || m == PaymentMPesa || m == PaymentCard
}
