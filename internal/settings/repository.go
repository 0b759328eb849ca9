package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukapos/dukapos/internal/shared"
)

// Repository persists the single business_settings row.
type Repository interface {
	Load(ctx context.Context) (Record, error)
	SaveInfo(ctx context.Context, in UpdateInput) (Record, error)
	SetPasswordHash(ctx context.Context, hash string) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const settingsColumns = `name, address, phone, email, currency, tax_rate::float8,
report_from_email, report_to_email, business_password_hash, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	i := &rec.Info
	err := row.Scan(&i.Name, &i.Address, &i.Phone, &i.Email, &i.Currency, &i.TaxRate,
		&i.ReportFromEmail, &i.ReportToEmail, &rec.PasswordHash, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, shared.ErrNotFound
	}
	return rec, err
}

func (r *pgRepository) Load(ctx context.Context) (Record, error) {
	return scanRecord(r.pool.QueryRow(ctx, `SELECT `+settingsColumns+` FROM business_settings WHERE id = 1`))
}

func (r *pgRepository) SaveInfo(ctx context.Context, in UpdateInput) (Record, error) {
	return scanRecord(r.pool.QueryRow(ctx, `INSERT INTO business_settings
(id, name, address, phone, email, currency, tax_rate, report_from_email, report_to_email, updated_at)
VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, NOW())
ON CONFLICT (id) DO UPDATE SET
name = EXCLUDED.name, address = EXCLUDED.address, phone = EXCLUDED.phone, email = EXCLUDED.email,
currency = EXCLUDED.currency, tax_rate = EXCLUDED.tax_rate, report_from_email = EXCLUDED.report_from_email,
report_to_email = EXCLUDED.report_to_email, updated_at = NOW()
RETURNING `+settingsColumns,
		in.Name, in.Address, in.Phone, in.Email, in.Currency, in.TaxRate, in.ReportFromEmail, in.ReportToEmail))
}

func (r *pgRepository) SetPasswordHash(ctx context.Context, hash string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO business_settings (id, business_password_hash, updated_at)
VALUES (1, $1, NOW())
ON CONFLICT (id) DO UPDATE SET business_password_hash = EXCLUDED.business_password_hash, updated_at = NOW()`, hash)
	return err
}
