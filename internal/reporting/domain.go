// Package reporting assembles store snapshots for the AI reorder advice and
// the emailed business report.
package reporting

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/shared"
)

// Pipeline stages of the email report.
const (
	StageGeneration = "generation"
	StageSend       = "send"
	StageRender     = "render"
)

// SaleLine is one sold item within the report window.
type SaleLine struct {
	SaleID   int64
	SoldAt   time.Time
	Method   string
	Product  string
	Quantity int
	Price    decimal.Decimal
}

// StockLine is the current stock position of a product.
type StockLine struct {
	Name      string
	SKU       string
	Stock     int
	Threshold int
	Supplier  string
}

// Low reports whether the product is at or below its threshold but not empty.
func (s StockLine) Low() bool {
	return s.Stock > 0 && s.Stock <= s.Threshold
}

// Out reports whether the product has no stock left.
func (s StockLine) Out() bool {
	return s.Stock == 0
}

// Delivery describes a sent report email.
type Delivery struct {
	ID      string    `json:"id"`
	To      []string  `json:"to"`
	Subject string    `json:"subject"`
	SentAt  time.Time `json:"sentAt"`
}

// ErrRendererNotConfigured indicates no PDF renderer was wired.
var ErrRendererNotConfigured = errors.New("pdf renderer not configured")

// StageError reports which stage of the report pipeline failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message(), e.Err)
}

// Message is the user-facing summary of the failure.
func (e *StageError) Message() string {
	switch e.Stage {
	case StageGeneration:
		return "report generation failed"
	case StageSend:
		return "report generated but not sent"
	case StageRender:
		return "report generated but pdf rendering failed"
	default:
		return "report failed"
	}
}

// Unwrap exposes both the upstream sentinel and the cause.
func (e *StageError) Unwrap() []error {
	return []error{shared.ErrUpstream, e.Err}
}
