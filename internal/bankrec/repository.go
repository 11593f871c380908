package bankrec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridianpos/meridian/internal/platform/db"
	"github.com/meridianpos/meridian/internal/shared"
)

// Repository persists bank accounts, imported transactions, and matches.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	UpsertAccount(ctx context.Context, a BankAccount) (BankAccount, error)
	GetAccount(ctx context.Context, orgID, accountID int64) (BankAccount, error)
	ListAccounts(ctx context.Context, orgID int64) ([]BankAccount, error)
	InsertTxns(ctx context.Context, accountID int64, rows []StatementRow) error
	ListUnreconciled(ctx context.Context, accountID int64) ([]BankTxn, error)
}

// TxRepository exposes the matching operations that must share one
// transaction.
type TxRepository interface {
	GetTxnForUpdate(ctx context.Context, orgID, txnID int64) (BankTxn, error)
	InsertMatch(ctx context.Context, m ReconcileMatch) (ReconcileMatch, error)
	MarkReconciled(ctx context.Context, txnID int64) error
	FindCandidate(ctx context.Context, orgID int64, amount decimal.Decimal, from, to time.Time) (Candidate, bool, error)
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

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const accountColumns = `id, org_id, name, account_number, currency, created_at, updated_at`

func scanAccount(row pgx.Row) (BankAccount, error) {
	var a BankAccount
	err := row.Scan(&a.ID, &a.OrgID, &a.Name, &a.AccountNumber, &a.Currency, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankAccount{}, fmt.Errorf("bank account: %w", shared.ErrNotFound)
		}
		return BankAccount{}, err
	}
	return a, nil
}

func (r *repository) UpsertAccount(ctx context.Context, a BankAccount) (BankAccount, error) {
	return scanAccount(r.pool.QueryRow(ctx, `INSERT INTO bank_accounts (org_id, name, account_number, currency)
VALUES ($1,$2,$3,$4)
ON CONFLICT (org_id, account_number)
DO UPDATE SET name=EXCLUDED.name, currency=EXCLUDED.currency, updated_at=NOW()
RETURNING `+accountColumns,
		a.OrgID, a.Name, a.AccountNumber, a.Currency))
}

func (r *repository) GetAccount(ctx context.Context, orgID, accountID int64) (BankAccount, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM bank_accounts WHERE id=$1 AND org_id=$2`, accountID, orgID))
}

func (r *repository) ListAccounts(ctx context.Context, orgID int64) ([]BankAccount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM bank_accounts WHERE org_id=$1 ORDER BY name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []BankAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) InsertTxns(ctx context.Context, accountID int64, statementRows []StatementRow) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		for _, row := range statementRows {
			if _, err := tx.Exec(ctx, `INSERT INTO bank_txns (bank_account_id, date, amount, description, ref, reconciled)
VALUES ($1,$2,$3,$4,$5,false)`, accountID, row.Date, row.Amount, row.Description, row.Ref); err != nil {
				return err
			}
		}
		return nil
	})
}

const txnColumns = `t.id, t.bank_account_id, t.date, t.amount, t.description, t.ref, t.reconciled, t.created_at`

func scanTxn(row pgx.Row) (BankTxn, error) {
	var t BankTxn
	err := row.Scan(&t.ID, &t.BankAccountID, &t.Date, &t.Amount, &t.Description, &t.Ref, &t.Reconciled, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankTxn{}, fmt.Errorf("bank transaction: %w", shared.ErrNotFound)
		}
		return BankTxn{}, err
	}
	return t, nil
}

func (r *repository) ListUnreconciled(ctx context.Context, accountID int64) ([]BankTxn, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+txnColumns+` FROM bank_txns t
WHERE t.bank_account_id=$1 AND NOT t.reconciled ORDER BY t.date, t.id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []BankTxn
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (r *txRepository) GetTxnForUpdate(ctx context.Context, orgID, txnID int64) (BankTxn, error) {
	return scanTxn(r.tx.QueryRow(ctx, `SELECT `+txnColumns+` FROM bank_txns t
JOIN bank_accounts a ON a.id = t.bank_account_id
WHERE t.id=$1 AND a.org_id=$2 FOR UPDATE OF t`, txnID, orgID))
}

func (r *txRepository) InsertMatch(ctx context.Context, m ReconcileMatch) (ReconcileMatch, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO reconcile_matches (bank_txn_id, source, source_id, matched_by)
VALUES ($1,$2,$3,$4) RETURNING id, bank_txn_id, source, source_id, matched_by, created_at`,
		m.BankTxnID, m.Source, m.SourceID, m.MatchedBy)
	var out ReconcileMatch
	if err := row.Scan(&out.ID, &out.BankTxnID, &out.Source, &out.SourceID, &out.MatchedBy, &out.CreatedAt); err != nil {
		return ReconcileMatch{}, err
	}
	return out, nil
}

func (r *txRepository) MarkReconciled(ctx context.Context, txnID int64) error {
	cmd, err := r.tx.Exec(ctx,
		`UPDATE bank_txns SET reconciled=true WHERE id=$1 AND NOT reconciled`, txnID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("bank transaction %d: %w", txnID, shared.ErrAlreadyReconciled)
	}
	return nil
}

// FindCandidate looks for a vendor payment or a posted refund entry with the
// given absolute amount inside the window that no other bank row has claimed
// yet. First found wins.
func (r *txRepository) FindCandidate(ctx context.Context, orgID int64, amount decimal.Decimal, from, to time.Time) (Candidate, bool, error) {
	var sourceID string
	err := r.tx.QueryRow(ctx, `SELECT p.id::text FROM vendor_payments p
WHERE p.org_id=$1 AND p.amount=$2 AND p.paid_at BETWEEN $3 AND $4
AND NOT EXISTS (SELECT 1 FROM reconcile_matches m WHERE m.source='PAYMENT' AND m.source_id=p.id::text)
ORDER BY p.paid_at, p.id LIMIT 1`, orgID, amount, from, to).Scan(&sourceID)
	if err == nil {
		return Candidate{Source: MatchSourcePayment, SourceID: sourceID}, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Candidate{}, false, err
	}

	err = r.tx.QueryRow(ctx, `SELECT e.source_id FROM journal_entries e
JOIN journal_lines l ON l.entry_id = e.id AND l.credit=$2
WHERE e.org_id=$1 AND e.source='REFUND' AND e.status='POSTED' AND e.date BETWEEN $3 AND $4
AND NOT EXISTS (SELECT 1 FROM reconcile_matches m WHERE m.source='REFUND' AND m.source_id=e.source_id)
ORDER BY e.date, e.id LIMIT 1`, orgID, amount, from, to).Scan(&sourceID)
	if err == nil {
		return Candidate{Source: MatchSourceRefund, SourceID: sourceID}, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Candidate{}, false, err
	}
	return Candidate{}, false, nil
}
