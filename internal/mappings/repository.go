package mappings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianpos/meridian/internal/shared"
)

type Repository interface {
	Upsert(ctx context.Context, orgID int64, key string, accountID int64) (AccountMapping, error)
	Get(ctx context.Context, orgID int64, key string) (AccountMapping, error)
	List(ctx context.Context, orgID int64) ([]AccountMapping, error)
	Delete(ctx context.Context, orgID int64, key string) error
	FindAccountByNameHint(ctx context.Context, orgID int64, hint string) (int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const mappingColumns = `id, org_id, key, account_id, created_at, updated_at`

func scanMapping(row pgx.Row) (AccountMapping, error) {
	var m AccountMapping
	err := row.Scan(&m.ID, &m.OrgID, &m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, fmt.Errorf("account mapping: %w", shared.ErrNotFound)
		}
		return AccountMapping{}, err
	}
	return m, nil
}

func (r *repository) Upsert(ctx context.Context, orgID int64, key string, accountID int64) (AccountMapping, error) {
	return scanMapping(r.pool.QueryRow(ctx, `INSERT INTO account_mappings (org_id, key, account_id)
VALUES ($1,$2,$3)
ON CONFLICT (org_id, key) DO UPDATE SET account_id=EXCLUDED.account_id, updated_at=NOW()
RETURNING `+mappingColumns, orgID, key, accountID))
}

func (r *repository) Get(ctx context.Context, orgID int64, key string) (AccountMapping, error) {
	return scanMapping(r.pool.QueryRow(ctx,
		`SELECT `+mappingColumns+` FROM account_mappings WHERE org_id=$1 AND key=$2`, orgID, key))
}

func (r *repository) List(ctx context.Context, orgID int64) ([]AccountMapping, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+mappingColumns+` FROM account_mappings WHERE org_id=$1 ORDER BY key`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		mapping, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mapping)
	}
	return out, rows.Err()
}

func (r *repository) Delete(ctx context.Context, orgID int64, key string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM account_mappings WHERE org_id=$1 AND key=$2`, orgID, key)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("account mapping %q: %w", key, shared.ErrNotFound)
	}
	return nil
}

func (r *repository) FindAccountByNameHint(ctx context.Context, orgID int64, hint string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM accounts
WHERE org_id=$1 AND type='ASSET' AND is_active AND name ILIKE $2 ORDER BY code LIMIT 1`,
		orgID, "%"+hint+"%").Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("no account matching %q: %w", hint, shared.ErrNotFound)
		}
		return 0, err
	}
	return id, nil
}
