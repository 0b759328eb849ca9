package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/shared"
)

// WalkInCustomer is recorded when checkout carries no customer name.
const WalkInCustomer = "Walk-in Customer"

// PaymentMethod enumerates accepted tenders.
type PaymentMethod string

// Payment methods.
const (
	PaymentCash  PaymentMethod = "Cash"
	PaymentMPesa PaymentMethod = "M-Pesa"
	PaymentCard  PaymentMethod = "Card"
)

// Sale is an immutable record of a completed checkout.
type Sale struct {
	ID                 int64           `json:"id"`
	Date               time.Time       `json:"date"`
	CustomerName       string          `json:"customerName"`
	PaymentMethod      PaymentMethod   `json:"paymentMethod"`
	Total              decimal.Decimal `json:"total"`
	TaxAmount          decimal.Decimal `json:"taxAmount"`
	AmountReceived     decimal.Decimal `json:"amountReceived"`
	Change             decimal.Decimal `json:"change"`
	Cashier            string          `json:"cashier"`
	OverrideApprovedBy string          `json:"overrideApprovedBy,omitempty"`
	Items              []SaleItem      `json:"items"`
}

// SaleItem is one cart line frozen at sale time.
type SaleItem struct {
	ProductID    int64           `json:"productId"`
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	CatalogPrice decimal.Decimal `json:"catalogPrice"`
}

// LineTotal returns price times quantity.
func (i SaleItem) LineTotal() decimal.Decimal {
	return shared.LineTotal(i.Price, i.Quantity)
}

// CartLine is one requested line at the till.
type CartLine struct {
	ProductID   int64           `json:"productId" validate:"required,gt=0"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	AgreedPrice decimal.Decimal `json:"agreedPrice" validate:"gt=0,cents"`
}

// Override carries the approving manager's credentials.
type Override struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// CheckoutRequest is the typed checkout payload.
type CheckoutRequest struct {
	CustomerName   string          `json:"customerName" validate:"max=200"`
	PaymentMethod  PaymentMethod   `json:"paymentMethod" validate:"required,oneof=Cash M-Pesa Card"`
	AmountReceived decimal.Decimal `json:"amountReceived" validate:"gte=0,cents"`
	Lines          []CartLine      `json:"lines" validate:"required,min=1,dive"`
	Override       *Override       `json:"override,omitempty"`
}

// QuoteRequest asks for a dry-run pricing of a cart.
type QuoteRequest struct {
	Lines    []CartLine `json:"lines" validate:"required,min=1,dive"`
	Override *Override  `json:"override,omitempty"`
}

// Quote is the dry-run result for a cart.
type Quote struct {
	Lines            []QuoteLine     `json:"lines"`
	Total            decimal.Decimal `json:"total"`
	TaxAmount        decimal.Decimal `json:"taxAmount"`
	RequiresOverride bool            `json:"requiresOverride"`
	ApprovedBy       string          `json:"approvedBy,omitempty"`
}

// QuoteLine prices one cart line against the store.
type QuoteLine struct {
	ProductID    int64           `json:"productId"`
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	AgreedPrice  decimal.Decimal `json:"agreedPrice"`
	CatalogPrice decimal.Decimal `json:"catalogPrice"`
	MinPrice     decimal.Decimal `json:"minPrice"`
	Available    int             `json:"available"`
	BelowFloor   bool            `json:"belowFloor"`
	LineTotal    decimal.Decimal `json:"lineTotal"`
}

// Cashier identifies who is operating the till.
type Cashier struct {
	Username string
	Role     string
}

// ProductSnapshot is the store view of a product used for pricing.
type ProductSnapshot struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	MinPrice decimal.Decimal
	Stock    int
}

// ListFilter narrows sales history.
type ListFilter struct {
	From          *time.Time
	To            *time.Time
	PaymentMethod PaymentMethod
	Page          shared.PageRequest
}

// TaxPortion returns the tax contained in a tax-inclusive total.
func TaxPortion(total decimal.Decimal, rate float64) decimal.Decimal {
	if rate <= 0 {
		return decimal.Zero
	}
	net := total.Div(decimal.NewFromFloat(rate).Add(decimal.NewFromInt(1)))
	return shared.Money(total.Sub(net))
}
