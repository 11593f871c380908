package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianpos/meridian/internal/platform/db"
	"github.com/meridianpos/meridian/internal/shared"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Insert(ctx context.Context, in CreateInput) (Period, error)
	Get(ctx context.Context, orgID, periodID int64) (Period, error)
	List(ctx context.Context, orgID int64) ([]Period, error)
	FindOverlapping(ctx context.Context, orgID int64, startsAt, endsAt time.Time) (Period, error)
	FindByDate(ctx context.Context, orgID int64, date time.Time) (Period, error)
}

// TxRepository exposes operations bound to one transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, orgID, periodID int64) (Period, error)
	Update(ctx context.Context, period Period) (Period, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

const periodColumns = `id, org_id, name, starts_at, ends_at, status, closed_by, closed_at, locked_by, locked_at, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.OrgID, &p.Name, &p.StartsAt, &p.EndsAt, &p.Status,
		&p.ClosedBy, &p.ClosedAt, &p.LockedBy, &p.LockedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, fmt.Errorf("period: %w", shared.ErrNotFound)
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Insert(ctx context.Context, in CreateInput) (Period, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO fiscal_periods (org_id, name, starts_at, ends_at, status)
VALUES ($1,$2,$3,$4,'OPEN') RETURNING `+periodColumns, in.OrgID, in.Name, in.StartsAt, in.EndsAt)
	return scanPeriod(row)
}

func (r *repository) Get(ctx context.Context, orgID, periodID int64) (Period, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE id=$1 AND org_id=$2`, periodID, orgID)
	return scanPeriod(row)
}

func (r *repository) List(ctx context.Context, orgID int64) ([]Period, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE org_id=$1 ORDER BY starts_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		period, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, period)
	}
	return out, rows.Err()
}

func (r *repository) FindOverlapping(ctx context.Context, orgID int64, startsAt, endsAt time.Time) (Period, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods
WHERE org_id=$1 AND starts_at <= $3 AND ends_at >= $2 ORDER BY starts_at LIMIT 1`, orgID, startsAt, endsAt)
	return scanPeriod(row)
}

func (r *repository) FindByDate(ctx context.Context, orgID int64, date time.Time) (Period, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods
WHERE org_id=$1 AND $2 BETWEEN starts_at AND ends_at ORDER BY starts_at LIMIT 1`, orgID, date)
	return scanPeriod(row)
}

func (r *txRepository) GetForUpdate(ctx context.Context, orgID, periodID int64) (Period, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE id=$1 AND org_id=$2 FOR UPDATE`, periodID, orgID)
	return scanPeriod(row)
}

func (r *txRepository) Update(ctx context.Context, period Period) (Period, error) {
	row := r.tx.QueryRow(ctx, `UPDATE fiscal_periods
SET status=$3, closed_by=$4, closed_at=$5, locked_by=$6, locked_at=$7, updated_at=NOW()
WHERE id=$1 AND org_id=$2 RETURNING `+periodColumns,
		period.ID, period.OrgID, period.Status, period.ClosedBy, period.ClosedAt, period.LockedBy, period.LockedAt)
	return scanPeriod(row)
}
