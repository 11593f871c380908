package journal

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

// insertEntry is the row shape handed to InsertEntry.
type insertEntry struct {
	OrgID           int64
	BranchID        *int64
	Date            time.Time
	Memo            string
	Source          Source
	SourceID        string
	Status          EntryStatus
	PostedBy        *int64
	PostedAt        *time.Time
	ReversesEntryID *int64
}

// Repository persists journal entries and lines.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, orgID, entryID int64) (JournalEntry, error)
	FindBySource(ctx context.Context, orgID int64, source Source, sourceID string) (JournalEntry, error)
	List(ctx context.Context, orgID int64, filter ListFilter) ([]JournalEntry, shared.Pagination, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertEntry(ctx context.Context, in insertEntry) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) error
	GetEntryForUpdate(ctx context.Context, orgID, entryID int64) (JournalEntry, error)
	GetLines(ctx context.Context, entryID int64) ([]JournalLine, error)
	FindBySource(ctx context.Context, orgID int64, source Source, sourceID string) (JournalEntry, error)
	MarkPosted(ctx context.Context, entryID, userID int64, at time.Time) (JournalEntry, error)
	MarkReversed(ctx context.Context, entryID, userID int64, at time.Time) error
	MissingAccounts(ctx context.Context, orgID int64, accountIDs []int64) ([]int64, error)
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

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}

const entryColumns = `id, org_id, branch_id, date, memo, source, source_id, status,
posted_by, posted_at, reverses_entry_id, reversed_by, reversed_at, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	var sourceID *string
	err := row.Scan(&e.ID, &e.OrgID, &e.BranchID, &e.Date, &e.Memo, &e.Source, &sourceID, &e.Status,
		&e.PostedBy, &e.PostedAt, &e.ReversesEntryID, &e.ReversedBy, &e.ReversedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, fmt.Errorf("journal entry: %w", shared.ErrNotFound)
		}
		return JournalEntry{}, err
	}
	if sourceID != nil {
		e.SourceID = *sourceID
	}
	return e, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) GetEntry(ctx context.Context, orgID, entryID int64) (JournalEntry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 AND org_id=$2`, entryID, orgID))
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := queryLines(ctx, r.pool, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *repository) FindBySource(ctx context.Context, orgID int64, source Source, sourceID string) (JournalEntry, error) {
	return scanEntry(r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE org_id=$1 AND source=$2 AND source_id=$3`, orgID, source, sourceID))
}

func (r *repository) List(ctx context.Context, orgID int64, filter ListFilter) ([]JournalEntry, shared.Pagination, error) {
	where := `WHERE org_id=$1`
	args := []any{orgID}
	add := func(clause string, value any) {
		args = append(args, value)
		where += fmt.Sprintf(" AND "+clause, len(args))
	}
	if filter.Source != "" {
		add("source=$%d", filter.Source)
	}
	if filter.Status != "" {
		add("status=$%d", filter.Status)
	}
	if filter.From != nil {
		add("date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("date <= $%d", *filter.To)
	}
	if filter.BranchID != nil {
		add("branch_id=$%d", *filter.BranchID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries `+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)

	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT `+entryColumns+` FROM journal_entries %s ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		entries = append(entries, entry)
	}
	return entries, page, rows.Err()
}

func queryLines(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, entryID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx,
		`SELECT id, entry_id, account_id, branch_id, debit, credit FROM journal_lines WHERE entry_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.BranchID, &line.Debit, &line.Credit); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) InsertEntry(ctx context.Context, in insertEntry) (JournalEntry, error) {
	var sourceID *string
	if in.SourceID != "" {
		sourceID = &in.SourceID
	}
	return scanEntry(r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(org_id, branch_id, date, memo, source, source_id, status, posted_by, posted_at, reverses_entry_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING `+entryColumns,
		in.OrgID, in.BranchID, in.Date, in.Memo, in.Source, sourceID, in.Status, in.PostedBy, in.PostedAt, in.ReversesEntryID))
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_id, branch_id, debit, credit)
VALUES ($1,$2,$3,$4,$5)`, entryID, line.AccountID, line.BranchID, line.Debit, line.Credit); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, orgID, entryID int64) (JournalEntry, error) {
	return scanEntry(r.tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 AND org_id=$2 FOR UPDATE`, entryID, orgID))
}

func (r *txRepository) GetLines(ctx context.Context, entryID int64) ([]JournalLine, error) {
	return queryLines(ctx, r.tx, entryID)
}

func (r *txRepository) FindBySource(ctx context.Context, orgID int64, source Source, sourceID string) (JournalEntry, error) {
	return scanEntry(r.tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE org_id=$1 AND source=$2 AND source_id=$3 FOR UPDATE`, orgID, source, sourceID))
}

func (r *txRepository) MarkPosted(ctx context.Context, entryID, userID int64, at time.Time) (JournalEntry, error) {
	return scanEntry(r.tx.QueryRow(ctx, `UPDATE journal_entries
SET status='POSTED', posted_by=$2, posted_at=$3, updated_at=NOW()
WHERE id=$1 RETURNING `+entryColumns, entryID, userID, at))
}

func (r *txRepository) MarkReversed(ctx context.Context, entryID, userID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries
SET status='REVERSED', reversed_by=$2, reversed_at=$3, updated_at=NOW()
WHERE id=$1 AND status='POSTED'`, entryID, userID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("journal entry %d not reversible: %w", entryID, shared.ErrInvalidState)
	}
	return nil
}

func (r *txRepository) MissingAccounts(ctx context.Context, orgID int64, accountIDs []int64) ([]int64, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT id FROM accounts WHERE org_id=$1 AND id = ANY($2) AND is_active`, orgID, accountIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := make(map[int64]struct{}, len(accountIDs))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var missing []int64
	for _, id := range accountIDs {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
