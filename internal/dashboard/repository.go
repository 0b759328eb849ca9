package dashboard

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository runs the dashboard aggregates.
type Repository interface {
	SalesTotals(ctx context.Context, from, to time.Time) (Period, error)
	SalesByMethod(ctx context.Context, from, to time.Time) ([]MethodTotal, error)
	LayawayExposure(ctx context.Context) (outstanding decimal.Decimal, pending int, err error)
	StockAlerts(ctx context.Context) (low, out int, err error)
	TopProducts(ctx context.Context, since time.Time, limit int) ([]TopProduct, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) SalesTotals(ctx context.Context, from, to time.Time) (Period, error) {
	var p Period
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total), 0), COUNT(*)
FROM sales WHERE sold_at >= $1 AND sold_at < $2`, from, to).Scan(&p.Revenue, &p.Count)
	return p, err
}

func (r *pgRepository) SalesByMethod(ctx context.Context, from, to time.Time) ([]MethodTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT payment_method, COALESCE(SUM(total), 0), COUNT(*)
FROM sales WHERE sold_at >= $1 AND sold_at < $2
GROUP BY payment_method ORDER BY payment_method`, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MethodTotal, error) {
		var m MethodTotal
		err := row.Scan(&m.Method, &m.Revenue, &m.Count)
		return m, err
	})
}

func (r *pgRepository) LayawayExposure(ctx context.Context) (decimal.Decimal, int, error) {
	var (
		outstanding decimal.Decimal
		pending     int
	)
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount - amount_paid), 0), COUNT(*)
FROM layaways WHERE status = 'Pending'`).Scan(&outstanding, &pending)
	return outstanding, pending, err
}

func (r *pgRepository) StockAlerts(ctx context.Context) (int, int, error) {
	var low, out int
	err := r.pool.QueryRow(ctx, `SELECT
COUNT(*) FILTER (WHERE stock <= low_stock_threshold),
COUNT(*) FILTER (WHERE stock = 0)
FROM products`).Scan(&low, &out)
	return low, out, err
}

func (r *pgRepository) TopProducts(ctx context.Context, since time.Time, limit int) ([]TopProduct, error) {
	rows, err := r.pool.Query(ctx, `SELECT si.name, SUM(si.quantity)::int, SUM(si.quantity * si.price)
FROM sale_items si JOIN sales s ON s.id = si.sale_id
WHERE s.sold_at >= $1
GROUP BY si.name
ORDER BY 2 DESC, 1 ASC
LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TopProduct, error) {
		var p TopProduct
		err := row.Scan(&p.Name, &p.Quantity, &p.Revenue)
		return p, err
	})
}
