package layaway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukapos/dukapos/internal/events"
	"github.com/dukapos/dukapos/internal/shared"
)

// ErrClosed indicates a payment or cancellation against a Paid or Cancelled plan.
var ErrClosed = fmt.Errorf("%w: layaway is closed", shared.ErrConflict)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filter ListFilter) ([]Layaway, int, error)
	Get(ctx context.Context, id int64) (Layaway, error)
}

// Observer receives payment notifications.
type Observer interface {
	ObserveLayawayPayment()
}

// Invalidator drops cached aggregates after ledger changes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service maintains the layaway ledger.
type Service struct {
	repo      RepositoryPort
	audit     shared.AuditRecorder
	publisher events.Publisher
	cache     Invalidator
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, publisher events.Publisher, cache Invalidator, observer Observer, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, publisher: publisher, cache: cache, observer: observer, logger: logger, now: time.Now}
}

// Create opens a plan and records the deposit as its first payment.
func (s *Service) Create(ctx context.Context, actor string, in CreateInput) (Layaway, error) {
	if err := in.validate(); err != nil {
		return Layaway{}, err
	}
	total := in.TotalAmount
	deposit := in.InitialDeposit
	method := in.DepositMethod
	if method == "" {
		method = "Cash"
	}

	var created Layaway
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		plan := Layaway{
			CustomerName: in.CustomerName,
			ProductID:    in.ProductID,
			ProductName:  in.ProductName,
			TotalAmount:  total,
			AmountPaid:   deposit,
			Status:       deriveStatus(deposit, total),
		}
		if in.ProductID != nil {
			name, floor, err := tx.ProductFloor(ctx, *in.ProductID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return fmt.Errorf("%w: product %d", shared.ErrNotFound, *in.ProductID)
				}
				return fmt.Errorf("load product: %w", err)
			}
			if total.LessThan(floor) {
				return shared.NewValidationError("totalAmount", "must not be below minimum price "+shared.FormatMoney(floor))
			}
			if plan.ProductName == "" {
				plan.ProductName = name
			}
		}
		now := s.now()
		if deposit.IsPositive() {
			plan.LastPaymentDate = &now
		}
		inserted, err := tx.Insert(ctx, plan)
		if err != nil {
			return fmt.Errorf("insert layaway: %w", err)
		}
		if deposit.IsPositive() {
			p, err := tx.InsertPayment(ctx, Payment{LayawayID: inserted.ID, Amount: deposit, Method: method, Date: now})
			if err != nil {
				return fmt.Errorf("insert deposit: %w", err)
			}
			inserted.Payments = []Payment{p}
		}
		created = inserted
		return nil
	})
	if err != nil {
		return Layaway{}, wrap("create", err)
	}

	details := fmt.Sprintf("Created layaway #%d for %s: %s total %s deposit %s",
		created.ID, created.CustomerName, created.ProductName,
		shared.FormatMoney(created.TotalAmount), shared.FormatMoney(created.AmountPaid))
	s.after(ctx, actor, shared.AuditActionLayaway, details, events.TypeLayawayCreated, created)
	if deposit.IsPositive() {
		s.observePayment()
	}
	return created, nil
}

// AddPayment appends an installment and recomputes the plan totals in one transaction.
func (s *Service) AddPayment(ctx context.Context, actor string, id int64, in PaymentInput) (Layaway, error) {
	if id <= 0 {
		return Layaway{}, shared.NewValidationError("id", "is invalid")
	}
	if err := shared.Validate(in); err != nil {
		return Layaway{}, err
	}
	amount := in.Amount

	var (
		updated Layaway
		payment Payment
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		plan, err := tx.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if plan.Closed() {
			return fmt.Errorf("%w (status %s)", ErrClosed, plan.Status)
		}
		if plan.Balance().LessThan(amount) {
			return shared.NewValidationError("amount", "exceeds the remaining balance "+shared.FormatMoney(plan.Balance()))
		}
		now := s.now()
		payment, err = tx.InsertPayment(ctx, Payment{LayawayID: id, Amount: amount, Method: in.Method, Date: now})
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		plan.AmountPaid = plan.AmountPaid.Add(amount)
		plan.Status = deriveStatus(plan.AmountPaid, plan.TotalAmount)
		plan.LastPaymentDate = &now
		if err := tx.UpdateProgress(ctx, id, plan.AmountPaid, plan.Status, now); err != nil {
			return err
		}
		updated = plan
		return nil
	})
	if err != nil {
		return Layaway{}, wrap("add payment", err)
	}

	details := fmt.Sprintf("Payment of %s (%s) on layaway #%d, balance %s",
		shared.FormatMoney(payment.Amount), payment.Method, id, shared.FormatMoney(updated.Balance()))
	s.after(ctx, actor, shared.AuditActionPayment, details, events.TypeLayawayPayment, payment)
	if updated.Status == StatusPaid {
		if err := s.publisher.Publish(ctx, events.TypeLayawayPaid, strconv.FormatInt(id, 10), updated); err != nil {
			s.logger.Warn("publish layaway paid", slog.Int64("layaway_id", id), slog.Any("error", err))
		}
	}
	s.observePayment()

	full, err := s.repo.Get(ctx, id)
	if err != nil {
		s.logger.Warn("reload layaway after payment", slog.Int64("layaway_id", id), slog.Any("error", err))
		return updated, nil
	}
	return full, nil
}

// Cancel moves a Pending plan to Cancelled.
func (s *Service) Cancel(ctx context.Context, actor string, id int64) (Layaway, error) {
	if id <= 0 {
		return Layaway{}, shared.NewValidationError("id", "is invalid")
	}
	var cancelled Layaway
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		plan, err := tx.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if plan.Status != StatusPending {
			return fmt.Errorf("%w (status %s)", ErrClosed, plan.Status)
		}
		if err := tx.UpdateStatus(ctx, id, StatusCancelled); err != nil {
			return err
		}
		plan.Status = StatusCancelled
		cancelled = plan
		return nil
	})
	if err != nil {
		return Layaway{}, wrap("cancel", err)
	}
	details := fmt.Sprintf("Cancelled layaway #%d for %s with %s paid", id, cancelled.CustomerName, shared.FormatMoney(cancelled.AmountPaid))
	s.after(ctx, actor, shared.AuditActionLayaway, details, events.TypeLayawayCanceled, cancelled)
	return cancelled, nil
}

// List returns a page of plans.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Layaway, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, shared.NewValidationError("status", "must be one of: Pending Paid Cancelled")
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("layaway: list: %w", err)
	}
	return items, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total), nil
}

// Get returns one plan with its payments oldest first.
func (s *Service) Get(ctx context.Context, id int64) (Layaway, error) {
	if id <= 0 {
		return Layaway{}, shared.NewValidationError("id", "is invalid")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) after(ctx context.Context, actor, action, details, eventType string, payload any) {
	shared.RecordBestEffort(ctx, s.logger, s.audit, shared.AuditLog{User: actor, Action: action, Details: details})
	key := ""
	switch v := payload.(type) {
	case Layaway:
		key = strconv.FormatInt(v.ID, 10)
	case Payment:
		key = strconv.FormatInt(v.LayawayID, 10)
	}
	if err := s.publisher.Publish(ctx, eventType, key, payload); err != nil {
		s.logger.Warn("publish layaway event", slog.String("type", eventType), slog.Any("error", err))
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("dashboard cache bump", slog.Any("error", err))
		}
	}
}

func (s *Service) observePayment() {
	if s.observer != nil {
		s.observer.ObserveLayawayPayment()
	}
}

func wrap(op string, err error) error {
	if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrConflict) {
		return err
	}
	return fmt.Errorf("layaway: %s: %w", op, err)
}
