package reports

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianpos/meridian/internal/journal"
)

// reportableStatuses are the entry statuses whose lines feed reports. A
// reversal flips the original entry to REVERSED while the compensating entry
// it creates stays POSTED; both sides must aggregate or every reversed
// account keeps the reversal's one-sided balance. DRAFT stays out.
var reportableStatuses = []string{
	string(journal.EntryStatusPosted),
	string(journal.EntryStatusReversed),
}

// Repository aggregates journal lines per account. Read only.
type Repository interface {
	Balances(ctx context.Context, orgID int64, branchID *int64, from, to *time.Time) ([]AccountBalance, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Balances(ctx context.Context, orgID int64, branchID *int64, from, to *time.Time) ([]AccountBalance, error) {
	query := `SELECT a.id, a.code, a.name, a.type,
COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
JOIN accounts a ON a.id = l.account_id
WHERE e.org_id = $1 AND e.status = ANY($2)`
	args := []any{orgID, reportableStatuses}
	add := func(clause string, value any) {
		args = append(args, value)
		query += ` AND ` + clause + `$` + strconv.Itoa(len(args))
	}
	if branchID != nil {
		// lines inherit the entry branch when they carry none themselves
		add("COALESCE(l.branch_id, e.branch_id) = ", *branchID)
	}
	if from != nil {
		add("e.date >= ", *from)
	}
	if to != nil {
		add("e.date <= ", *to)
	}
	query += ` GROUP BY a.id, a.code, a.name, a.type ORDER BY a.code`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}
