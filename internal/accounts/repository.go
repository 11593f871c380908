package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianpos/meridian/internal/shared"
)

type Repository interface {
	Insert(ctx context.Context, in CreateInput) (Account, error)
	Update(ctx context.Context, account Account) (Account, error)
	Get(ctx context.Context, orgID, accountID int64) (Account, error)
	GetByCode(ctx context.Context, orgID int64, code string) (Account, error)
	List(ctx context.Context, orgID int64, filter ListFilter) ([]Account, error)
	HasJournalLines(ctx context.Context, accountID int64) (bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const accountColumns = `id, org_id, code, name, type, parent_id, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.OrgID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("account: %w", shared.ErrNotFound)
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) Insert(ctx context.Context, in CreateInput) (Account, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO accounts (org_id, code, name, type, parent_id, is_active)
VALUES ($1,$2,$3,$4,$5,TRUE) RETURNING `+accountColumns, in.OrgID, in.Code, in.Name, in.Type, in.ParentID)
	account, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, fmt.Errorf("account code %q already exists: %w", in.Code, shared.ErrValidation)
		}
		return Account{}, err
	}
	return account, nil
}

func (r *repository) Update(ctx context.Context, account Account) (Account, error) {
	row := r.pool.QueryRow(ctx, `UPDATE accounts SET name=$3, type=$4, is_active=$5, updated_at=NOW()
WHERE id=$1 AND org_id=$2 RETURNING `+accountColumns, account.ID, account.OrgID, account.Name, account.Type, account.IsActive)
	return scanAccount(row)
}

func (r *repository) Get(ctx context.Context, orgID, accountID int64) (Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 AND org_id=$2`, accountID, orgID)
	return scanAccount(row)
}

func (r *repository) GetByCode(ctx context.Context, orgID int64, code string) (Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE org_id=$1 AND code=$2`, orgID, code)
	return scanAccount(row)
}

func (r *repository) List(ctx context.Context, orgID int64, filter ListFilter) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE org_id=$1`
	args := []any{orgID}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type=$%d", len(args))
	}
	if filter.ActiveOnly {
		query += " AND is_active"
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		query += fmt.Sprintf(" AND (code ILIKE $%d OR name ILIKE $%d)", len(args), len(args))
	}
	query += " ORDER BY code"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *repository) HasJournalLines(ctx context.Context, accountID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_lines WHERE account_id=$1)`, accountID).Scan(&exists)
	return exists, err
}
