package dashboard

import (
	"time"

	"github.com/shopspring/decimal"
)

// Period aggregates completed sales over a window.
type Period struct {
	Revenue decimal.Decimal `json:"revenue"`
	Count   int             `json:"count"`
}

// MethodTotal is revenue for one payment method.
type MethodTotal struct {
	Method  string  `json:"method"`
	Revenue decimal.Decimal `json:"revenue"`
	Count   int             `json:"count"`
}

// TopProduct ranks products by units sold.
type TopProduct struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// Summary is the back-office dashboard payload.
type Summary struct {
	GeneratedAt        time.Time       `json:"generatedAt"`
	Today              Period          `json:"today"`
	Month              Period          `json:"month"`
	TodayByMethod      []MethodTotal   `json:"todayByMethod"`
	OutstandingLayaway decimal.Decimal `json:"outstandingLayaway"`
	PendingLayaways    int             `json:"pendingLayaways"`
	LowStock           int             `json:"lowStock"`
	OutOfStock         int             `json:"outOfStock"`
	TopProducts        []TopProduct    `json:"topProducts"`
}
