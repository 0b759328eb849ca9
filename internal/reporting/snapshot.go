package reporting

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dukapos/dukapos/internal/shared"
)

// maxSaleLines bounds the sales text passed to the model.
const maxSaleLines = 400

// Snapshot is the plain-text store context handed to the AI flows.
type Snapshot struct {
	SalesData       string
	ProductDetails  string
	LowStockItems   string
	OutOfStockItems string
	SaleCount       int
	Revenue         decimal.Decimal
}

type moneyFormat struct {
	printer  *message.Printer
	currency string
}

func newMoneyFormat(currency string) moneyFormat {
	if currency == "" {
		currency = "KES"
	}
	return moneyFormat{printer: message.NewPrinter(language.English), currency: currency}
}

// amount groups the whole part with the printer and keeps the cents exact.
func (m moneyFormat) amount(v decimal.Decimal) string {
	rounded := v.Round(2)
	whole, frac, _ := strings.Cut(rounded.Abs().StringFixed(2), ".")
	n, _ := strconv.ParseInt(whole, 10, 64)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
	}
	return m.currency + " " + sign + m.printer.Sprintf("%d", n) + "." + frac
}

func buildSnapshot(sales []SaleLine, stock []StockLine, currency string, days int, loc *time.Location) Snapshot {
	if loc == nil {
		loc = time.UTC
	}
	money := newMoneyFormat(currency)
	snap := Snapshot{Revenue: decimal.Zero}

	saleIDs := make(map[int64]struct{})
	units := make(map[string]int)
	for _, l := range sales {
		saleIDs[l.SaleID] = struct{}{}
		units[l.Product] += l.Quantity
		snap.Revenue = snap.Revenue.Add(shared.LineTotal(l.Price, l.Quantity))
	}
	snap.SaleCount = len(saleIDs)

	var sb strings.Builder
	if len(sales) == 0 {
		sb.WriteString(money.printer.Sprintf("No sales in the last %d days.", days))
	} else {
		sb.WriteString(money.printer.Sprintf("%d sales totalling %s in the last %d days.\n", snap.SaleCount, money.amount(snap.Revenue), days))
		sb.WriteString("Units sold per product:\n")
		for _, name := range sortedByUnits(units) {
			sb.WriteString(money.printer.Sprintf("- %s: %d\n", name, units[name]))
		}
		sb.WriteString("Sale lines:\n")
		for i, l := range sales {
			if i == maxSaleLines {
				sb.WriteString(money.printer.Sprintf("... %d more lines omitted\n", len(sales)-maxSaleLines))
				break
			}
			sb.WriteString(money.printer.Sprintf("%s sale #%d (%s): %s x%d @ %s\n",
				l.SoldAt.In(loc).Format("2006-01-02 15:04"), l.SaleID, l.Method, l.Product, l.Quantity, money.amount(l.Price)))
		}
	}
	snap.SalesData = strings.TrimRight(sb.String(), "\n")

	var details, low, out []string
	for _, p := range stock {
		supplier := p.Supplier
		if supplier == "" {
			supplier = "unknown"
		}
		details = append(details, money.printer.Sprintf("%s (SKU %s): stock %d, low-stock threshold %d, supplier %s",
			p.Name, p.SKU, p.Stock, p.Threshold, supplier))
		switch {
		case p.Out():
			out = append(out, money.printer.Sprintf("%s (supplier %s)", p.Name, supplier))
		case p.Low():
			low = append(low, money.printer.Sprintf("%s: %d left, threshold %d", p.Name, p.Stock, p.Threshold))
		}
	}
	snap.ProductDetails = joinOrNone(details)
	snap.LowStockItems = joinOrNone(low)
	snap.OutOfStockItems = joinOrNone(out)
	return snap
}

func sortedByUnits(units map[string]int) []string {
	names := make([]string, 0, len(units))
	for name := range units {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if units[names[i]] != units[names[j]] {
			return units[names[i]] > units[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

func joinOrNone(lines []string) string {
	if len(lines) == 0 {
		return "None"
	}
	return strings.Join(lines, "\n")
}
