package sales

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/internal/shared"
)

// TxRepository exposes the writes performed inside the checkout transaction.
type TxRepository interface {
	DecrementStock(ctx context.Context, productID int64, qty int) (ProductSnapshot, bool, error)
	ProductExists(ctx context.Context, productID int64) (bool, error)
	InsertSale(ctx context.Context, sale Sale) (int64, time.Time, error)
	InsertSaleItems(ctx context.Context, saleID int64, items []SaleItem) error
}

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn in one transaction; any error rolls every write back.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// DecrementStock takes qty units only when enough stock remains. ok is false
// when the row is missing or short.
func (t *txRepo) DecrementStock(ctx context.Context, productID int64, qty int) (ProductSnapshot, bool, error) {
	snap := ProductSnapshot{ID: productID}
	err := t.tx.QueryRow(ctx, `UPDATE products SET stock = stock - $2, updated_at = NOW()
WHERE id = $1 AND stock >= $2
RETURNING name, price, min_price, stock`, productID, qty).
		Scan(&snap.Name, &snap.Price, &snap.MinPrice, &snap.Stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductSnapshot{}, false, nil
		}
		return ProductSnapshot{}, false, err
	}
	return snap, true, nil
}

func (t *txRepo) ProductExists(ctx context.Context, productID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertSale(ctx context.Context, sale Sale) (int64, time.Time, error) {
	var (
		id     int64
		soldAt time.Time
	)
	var approvedBy *string
	if sale.OverrideApprovedBy != "" {
		approvedBy = &sale.OverrideApprovedBy
	}
	err := t.tx.QueryRow(ctx, `INSERT INTO sales
(customer_name, payment_method, total, tax_amount, amount_received, change_due, cashier, override_approved_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, sold_at`,
		sale.CustomerName, string(sale.PaymentMethod), sale.Total, sale.TaxAmount,
		sale.AmountReceived, sale.Change, sale.Cashier, approvedBy).Scan(&id, &soldAt)
	return id, soldAt, err
}

func (t *txRepo) InsertSaleItems(ctx context.Context, saleID int64, items []SaleItem) error {
	batch := &pgx.Batch{}
	for i, item := range items {
		batch.Queue(`INSERT INTO sale_items (sale_id, line_no, product_id, name, quantity, price, catalog_price)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, saleID, i+1, item.ProductID, item.Name, item.Quantity, item.Price, item.CatalogPrice)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

// ProductsByIDs loads pricing snapshots without locking.
func (r *Repository) ProductsByIDs(ctx context.Context, ids []int64) (map[int64]ProductSnapshot, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, price, min_price, stock
FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]ProductSnapshot, len(ids))
	for rows.Next() {
		var s ProductSnapshot
		if err := rows.Scan(&s.ID, &s.Name, &s.Price, &s.MinPrice, &s.Stock); err != nil {
			return nil, err
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

const saleColumns = `id, sold_at, customer_name, payment_method, total, tax_amount,
amount_received, change_due, cashier, COALESCE(override_approved_by, '')`

func scanSale(row pgx.Row) (Sale, error) {
	var (
		s      Sale
		method string
	)
	err := row.Scan(&s.ID, &s.Date, &s.CustomerName, &method, &s.Total, &s.TaxAmount,
		&s.AmountReceived, &s.Change, &s.Cashier, &s.OverrideApprovedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, shared.ErrNotFound
		}
		return Sale{}, err
	}
	s.PaymentMethod = PaymentMethod(method)
	return s, nil
}

// ListSales returns sales newest first without items.
func (r *Repository) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.From != nil {
		args = append(args, *filter.From)
		where += ` AND sold_at >= $` + strconv.Itoa(len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where += ` AND sold_at < $` + strconv.Itoa(len(args))
	}
	if filter.PaymentMethod != "" {
		args = append(args, string(filter.PaymentMethod))
		where += ` AND payment_method = $` + strconv.Itoa(len(args))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales`+where+
		` ORDER BY sold_at DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// GetSale loads a sale with its items in line order.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	s, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		return Sale{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT product_id, name, quantity, price, catalog_price
FROM sale_items WHERE sale_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return Sale{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item SaleItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &item.Price, &item.CatalogPrice); err != nil {
			return Sale{}, err
		}
		s.Items = append(s.Items, item)
	}
	return s, rows.Err()
}
