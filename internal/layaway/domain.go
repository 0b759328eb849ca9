package layaway

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/shared"
)

// Status tracks where a plan is in its lifecycle.
type Status string

// Layaway statuses. Paid and Cancelled are terminal.
const (
	StatusPending   Status = "Pending"
	StatusPaid      Status = "Paid"
	StatusCancelled Status = "Cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusPaid || s == StatusCancelled
}

// Layaway is an installment plan for one item.
type Layaway struct {
	ID              int64           `json:"id"`
	CustomerName    string          `json:"customerName"`
	ProductID       *int64          `json:"productId,omitempty"`
	ProductName     string          `json:"productName"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	AmountPaid      decimal.Decimal `json:"amountPaid"`
	Status          Status          `json:"status"`
	LastPaymentDate *time.Time      `json:"lastPaymentDate,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	Payments        []Payment       `json:"payments,omitempty"`
}

// Balance returns the amount still owed.
func (l Layaway) Balance() decimal.Decimal {
	if !l.AmountPaid.LessThan(l.TotalAmount) {
		return decimal.Zero
	}
	return l.TotalAmount.Sub(l.AmountPaid)
}

// Closed reports whether the plan accepts no further payments.
func (l Layaway) Closed() bool {
	return l.Status == StatusPaid || l.Status == StatusCancelled
}

// Payment is one installment against a plan.
type Payment struct {
	ID        int64           `json:"id"`
	LayawayID int64           `json:"layawayId"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Date      time.Time       `json:"date"`
}

// CreateInput opens a plan, optionally with a deposit.
type CreateInput struct {
	CustomerName   string          `json:"customerName" validate:"required,max=200"`
	ProductID      *int64          `json:"productId,omitempty" validate:"omitempty,gt=0"`
	ProductName    string          `json:"productName" validate:"max=200"`
	TotalAmount    decimal.Decimal `json:"totalAmount" validate:"gt=0,cents"`
	InitialDeposit decimal.Decimal `json:"initialDeposit" validate:"gte=0,cents"`
	DepositMethod  string          `json:"depositMethod" validate:"omitempty,oneof=Cash M-Pesa Card"`
}

func (in CreateInput) validate() error {
	if err := shared.Validate(in); err != nil {
		return err
	}
	if in.ProductID == nil && in.ProductName == "" {
		return shared.NewValidationError("productName", "is required when productId is not given")
	}
	if in.TotalAmount.LessThan(in.InitialDeposit) {
		return shared.NewValidationError("initialDeposit", "must not exceed totalAmount")
	}
	return nil
}

// PaymentInput records one installment.
type PaymentInput struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0,cents"`
	Method string          `json:"method" validate:"required,oneof=Cash M-Pesa Card"`
}

// ListFilter narrows the plan list.
type ListFilter struct {
	Status Status
	Search string
	Page   shared.PageRequest
}

// deriveStatus maps a paid amount to Pending or Paid.
func deriveStatus(paid, total decimal.Decimal) Status {
	if paid.LessThan(total) {
		return StatusPending
	}
	return StatusPaid
}
