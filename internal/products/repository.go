package products

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/internal/shared"
)

// Repository persists products.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, p Product) (Product, error)
	Update(ctx context.Context, id int64, p Product) (Product, error)
	Delete(ctx context.Context, id int64) (Product, error)
	IncrementStock(ctx context.Context, id int64, qty int) (Product, error)
	LowStock(ctx context.Context) ([]Product, error)
	Categories(ctx context.Context) ([]string, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const productColumns = `id, name, sku, category, stock, price, cost, min_price,
low_stock_threshold, supplier, description, image_url, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Category, &p.Stock, &p.Price, &p.Cost, &p.MinPrice,
		&p.LowStockThreshold, &p.Supplier, &p.Description, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR sku ILIKE $` + n + `)`
	}
	if c := strings.TrimSpace(filter.Category); c != "" {
		args = append(args, c)
		where += ` AND category = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Page.Limit(), filter.Page.Offset())
	query := `SELECT ` + productColumns + ` FROM products` + where +
		` ORDER BY name ASC, id ASC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectProducts(rows)
	return items, total, err
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (r *pgRepository) Create(ctx context.Context, p Product) (Product, error) {
	now := time.Now()
	row := r.pool.QueryRow(ctx, `INSERT INTO products
(name, sku, category, stock, price, cost, min_price, low_stock_threshold, supplier, description, image_url, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
RETURNING `+productColumns,
		p.Name, p.SKU, p.Category, p.Stock, p.Price, p.Cost, p.MinPrice, p.LowStockThreshold,
		p.Supplier, p.Description, p.ImageURL, now)
	created, err := scanProduct(row)
	return created, mapWriteError(err, p.SKU)
}

func (r *pgRepository) Update(ctx context.Context, id int64, p Product) (Product, error) {
	row := r.pool.QueryRow(ctx, `UPDATE products SET
name = $1, sku = $2, category = $3, stock = $4, price = $5, cost = $6, min_price = $7,
low_stock_threshold = $8, supplier = $9, description = $10, image_url = $11, updated_at = NOW()
WHERE id = $12
RETURNING `+productColumns,
		p.Name, p.SKU, p.Category, p.Stock, p.Price, p.Cost, p.MinPrice, p.LowStockThreshold,
		p.Supplier, p.Description, p.ImageURL, id)
	updated, err := scanProduct(row)
	return updated, mapWriteError(err, p.SKU)
}

func (r *pgRepository) Delete(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `DELETE FROM products WHERE id = $1 RETURNING `+productColumns, id))
}

func (r *pgRepository) IncrementStock(ctx context.Context, id int64, qty int) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `UPDATE products SET stock = stock + $2, updated_at = NOW()
WHERE id = $1 RETURNING `+productColumns, id, qty))
}

func (r *pgRepository) LowStock(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE stock <= low_stock_threshold ORDER BY stock ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (r *pgRepository) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT category FROM products WHERE category <> '' ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func mapWriteError(err error, sku string) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: sku %q already exists", shared.ErrConflict, sku)
	case db.IsCheckViolation(err):
		return fmt.Errorf("%w: product violates catalog constraints", shared.ErrValidation)
	default:
		return err
	}
}
