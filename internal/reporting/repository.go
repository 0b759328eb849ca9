package reporting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the data behind report snapshots.
type Repository interface {
	RecentSales(ctx context.Context, since time.Time) ([]SaleLine, error)
	ProductStock(ctx context.Context) ([]StockLine, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) RecentSales(ctx context.Context, since time.Time) ([]SaleLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.sold_at, s.payment_method, si.name, si.quantity, si.price
FROM sales s JOIN sale_items si ON si.sale_id = s.id
WHERE s.sold_at >= $1
ORDER BY s.sold_at ASC, s.id ASC, si.line_no ASC`, since)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SaleLine, error) {
		var l SaleLine
		err := row.Scan(&l.SaleID, &l.SoldAt, &l.Method, &l.Product, &l.Quantity, &l.Price)
		return l, err
	})
}

func (r *pgRepository) ProductStock(ctx context.Context) ([]StockLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, sku, stock, low_stock_threshold, supplier
FROM products ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (StockLine, error) {
		var l StockLine
		err := row.Scan(&l.Name, &l.SKU, &l.Stock, &l.Threshold, &l.Supplier)
		return l, err
	})
}
