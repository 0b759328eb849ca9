package layaway

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/internal/shared"
)

// TxRepository exposes ledger writes that must commit together.
type TxRepository interface {
	ProductFloor(ctx context.Context, productID int64) (name string, minPrice decimal.Decimal, err error)
	Insert(ctx context.Context, l Layaway) (Layaway, error)
	LockForUpdate(ctx context.Context, id int64) (Layaway, error)
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	UpdateProgress(ctx context.Context, id int64, amountPaid decimal.Decimal, status Status, paidAt time.Time) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
}

// Repository persists layaway plans in PostgreSQL.
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

// WithTx runs fn in one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const layawayColumns = `id, customer_name, product_id, product_name, total_amount, amount_paid,
status, last_payment_at, created_at`

func scanLayaway(row pgx.Row) (Layaway, error) {
	var (
		l         Layaway
		productID pgtype.Int8
		lastPaid  pgtype.Timestamptz
		status    string
	)
	err := row.Scan(&l.ID, &l.CustomerName, &productID, &l.ProductName, &l.TotalAmount, &l.AmountPaid,
		&status, &lastPaid, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Layaway{}, shared.ErrNotFound
		}
		return Layaway{}, err
	}
	l.Status = Status(status)
	if productID.Valid {
		id := productID.Int64
		l.ProductID = &id
	}
	if lastPaid.Valid {
		at := lastPaid.Time
		l.LastPaymentDate = &at
	}
	return l, nil
}

func (t *txRepo) ProductFloor(ctx context.Context, productID int64) (string, decimal.Decimal, error) {
	var (
		name     string
		minPrice decimal.Decimal
	)
	err := t.tx.QueryRow(ctx, `SELECT name, min_price FROM products WHERE id = $1`, productID).Scan(&name, &minPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", decimal.Zero, shared.ErrNotFound
	}
	return name, minPrice, err
}

func (t *txRepo) Insert(ctx context.Context, l Layaway) (Layaway, error) {
	productID := pgtype.Int8{}
	if l.ProductID != nil {
		productID = pgtype.Int8{Int64: *l.ProductID, Valid: true}
	}
	lastPaid := pgtype.Timestamptz{}
	if l.LastPaymentDate != nil {
		lastPaid = pgtype.Timestamptz{Time: *l.LastPaymentDate, Valid: true}
	}
	return scanLayaway(t.tx.QueryRow(ctx, `INSERT INTO layaways
(customer_name, product_id, product_name, total_amount, amount_paid, status, last_payment_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+layawayColumns,
		l.CustomerName, productID, l.ProductName, l.TotalAmount, l.AmountPaid, string(l.Status), lastPaid))
}

// LockForUpdate reads the plan and holds its row lock until the transaction ends.
func (t *txRepo) LockForUpdate(ctx context.Context, id int64) (Layaway, error) {
	return scanLayaway(t.tx.QueryRow(ctx, `SELECT `+layawayColumns+` FROM layaways WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO layaway_payments (layaway_id, amount, method, paid_at)
VALUES ($1, $2, $3, $4) RETURNING id`, p.LayawayID, p.Amount, p.Method, p.Date).Scan(&p.ID)
	return p, err
}

func (t *txRepo) UpdateProgress(ctx context.Context, id int64, amountPaid decimal.Decimal, status Status, paidAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE layaways SET amount_paid = $2, status = $3, last_payment_at = $4 WHERE id = $1`,
		id, amountPaid, string(status), paidAt)
	if err != nil {
		if db.IsCheckViolation(err) {
			return shared.NewValidationError("amount", "exceeds the remaining balance")
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE layaways SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// List returns a page of plans, most recent first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Layaway, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (customer_name ILIKE $` + n + ` OR product_name ILIKE $` + n + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM layaways`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+layawayColumns+` FROM layaways`+where+
		` ORDER BY created_at DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Layaway
	for rows.Next() {
		l, err := scanLayaway(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

// Get returns one plan with payments in chronological order.
func (r *Repository) Get(ctx context.Context, id int64) (Layaway, error) {
	l, err := scanLayaway(r.pool.QueryRow(ctx, `SELECT `+layawayColumns+` FROM layaways WHERE id = $1`, id))
	if err != nil {
		return Layaway{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, layaway_id, amount, method, paid_at
FROM layaway_payments WHERE layaway_id = $1 ORDER BY paid_at ASC, id ASC`, id)
	if err != nil {
		return Layaway{}, err
	}
	defer rows.Close()
	l.Payments = []Payment{}
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.LayawayID, &p.Amount, &p.Method, &p.Date); err != nil {
			return Layaway{}, err
		}
		l.Payments = append(l.Payments, p)
	}
	return l, rows.Err()
}
