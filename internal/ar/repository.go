package ar

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianpos/meridian/internal/platform/db"
	"github.com/meridianpos/meridian/internal/shared"
)

// Repository persists customers, invoices, receipts, and credit notes.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertCustomer(ctx context.Context, c Customer) (Customer, error)
	GetCustomer(ctx context.Context, orgID, customerID int64) (Customer, error)
	UpdateCustomer(ctx context.Context, c Customer) (Customer, error)
	ListCustomers(ctx context.Context, orgID int64, search string, page, perPage int) ([]Customer, shared.Pagination, error)
	InsertInvoice(ctx context.Context, i CustomerInvoice) (CustomerInvoice, error)
	GetInvoice(ctx context.Context, orgID, invoiceID int64) (CustomerInvoice, error)
	ListInvoices(ctx context.Context, orgID int64, filter InvoiceFilter) ([]CustomerInvoice, shared.Pagination, error)
	ListOutstandingInvoices(ctx context.Context, orgID int64) ([]CustomerInvoice, error)
	ListReceipts(ctx context.Context, orgID, customerID int64, page, perPage int) ([]CustomerReceipt, shared.Pagination, error)
	InsertCreditNote(ctx context.Context, n CustomerCreditNote) (CustomerCreditNote, error)
	GetCreditNote(ctx context.Context, orgID, noteID int64) (CustomerCreditNote, error)
	ListCreditNotes(ctx context.Context, orgID, customerID int64, page, perPage int) ([]CustomerCreditNote, shared.Pagination, error)
}

// TxRepository exposes the operations that must share one transaction.
type TxRepository interface {
	GetInvoiceForUpdate(ctx context.Context, orgID, invoiceID int64) (CustomerInvoice, error)
	UpdateInvoice(ctx context.Context, i CustomerInvoice) (CustomerInvoice, error)
	InsertReceipt(ctx context.Context, rc CustomerReceipt) (CustomerReceipt, error)
	LinkReceiptEntry(ctx context.Context, receiptID, entryID int64) error
	GetCreditNoteForUpdate(ctx context.Context, orgID, noteID int64) (CustomerCreditNote, error)
	UpdateCreditNote(ctx context.Context, n CustomerCreditNote) (CustomerCreditNote, error)
	InsertAllocation(ctx context.Context, a CreditAllocation) (CreditAllocation, error)
	GetAllocation(ctx context.Context, orgID, allocationID int64) (CreditAllocation, error)
	DeleteAllocation(ctx context.Context, allocationID int64) error
	InsertCreditRefund(ctx context.Context, r CreditRefund) (CreditRefund, error)
	LinkCreditRefundEntry(ctx context.Context, refundID, entryID int64) error
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

const customerColumns = `id, org_id, name, phone, email, is_active, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.OrgID, &c.Name, &c.Phone, &c.Email, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, fmt.Errorf("customer: %w", shared.ErrNotFound)
		}
		return Customer{}, err
	}
	return c, nil
}

func (r *repository) InsertCustomer(ctx context.Context, c Customer) (Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, `INSERT INTO customers (org_id, name, phone, email, is_active)
VALUES ($1,$2,$3,$4,$5) RETURNING `+customerColumns,
		c.OrgID, c.Name, c.Phone, c.Email, c.IsActive))
}

func (r *repository) GetCustomer(ctx context.Context, orgID, customerID int64) (Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id=$1 AND org_id=$2`, customerID, orgID))
}

func (r *repository) UpdateCustomer(ctx context.Context, c Customer) (Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, `UPDATE customers
SET name=$3, phone=$4, email=$5, is_active=$6, updated_at=NOW()
WHERE id=$1 AND org_id=$2 RETURNING `+customerColumns,
		c.ID, c.OrgID, c.Name, c.Phone, c.Email, c.IsActive))
}

func (r *repository) ListCustomers(ctx context.Context, orgID int64, search string, pageNum, perPage int) ([]Customer, shared.Pagination, error) {
	where := `WHERE org_id=$1`
	args := []any{orgID}
	if search != "" {
		args = append(args, "%"+search+"%")
		where += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers `+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(pageNum, perPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT `+customerColumns+` FROM customers %s ORDER BY name LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		customers = append(customers, c)
	}
	return customers, page, rows.Err()
}

const invoiceColumns = `id, org_id, customer_id, number, invoice_date, due_date, subtotal, tax, total,
paid_amount, status, journal_entry_id, opened_by, opened_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (CustomerInvoice, error) {
	var i CustomerInvoice
	err := row.Scan(&i.ID, &i.OrgID, &i.CustomerID, &i.Number, &i.InvoiceDate, &i.DueDate, &i.Subtotal, &i.Tax,
		&i.Total, &i.PaidAmount, &i.Status, &i.JournalEntryID, &i.OpenedBy, &i.OpenedAt, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CustomerInvoice{}, fmt.Errorf("customer invoice: %w", shared.ErrNotFound)
		}
		return CustomerInvoice{}, err
	}
	return i, nil
}

func (r *repository) InsertInvoice(ctx context.Context, i CustomerInvoice) (CustomerInvoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `INSERT INTO customer_invoices
(org_id, customer_id, number, invoice_date, due_date, subtotal, tax, total, paid_amount, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9) RETURNING `+invoiceColumns,
		i.OrgID, i.CustomerID, i.Number, i.InvoiceDate, i.DueDate, i.Subtotal, i.Tax, i.Total, i.Status))
}

func (r *repository) GetInvoice(ctx context.Context, orgID, invoiceID int64) (CustomerInvoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM customer_invoices WHERE id=$1 AND org_id=$2`, invoiceID, orgID))
}

func (r *repository) ListInvoices(ctx context.Context, orgID int64, filter InvoiceFilter) ([]CustomerInvoice, shared.Pagination, error) {
	where := `WHERE org_id=$1`
	args := []any{orgID}
	if filter.CustomerID != 0 {
		args = append(args, filter.CustomerID)
		where += fmt.Sprintf(" AND customer_id=$%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status=$%d", len(args))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customer_invoices `+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT `+invoiceColumns+` FROM customer_invoices %s ORDER BY invoice_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var invoices []CustomerInvoice
	for rows.Next() {
		i, err := scanInvoice(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		invoices = append(invoices, i)
	}
	return invoices, page, rows.Err()
}

func (r *repository) ListOutstandingInvoices(ctx context.Context, orgID int64) ([]CustomerInvoice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+invoiceColumns+` FROM customer_invoices WHERE org_id=$1 AND status IN ('OPEN','PARTIALLY_PAID') ORDER BY due_date`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []CustomerInvoice
	for rows.Next() {
		i, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, i)
	}
	return invoices, rows.Err()
}

const receiptColumns = `id, org_id, customer_id, invoice_id, amount, received_at, method, ref, journal_entry_id, created_by, created_at`

func scanReceipt(row pgx.Row) (CustomerReceipt, error) {
	var rc CustomerReceipt
	err := row.Scan(&rc.ID, &rc.OrgID, &rc.CustomerID, &rc.InvoiceID, &rc.Amount, &rc.ReceivedAt, &rc.Method,
		&rc.Ref, &rc.JournalEntryID, &rc.CreatedBy, &rc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CustomerReceipt{}, fmt.Errorf("customer receipt: %w", shared.ErrNotFound)
		}
		return CustomerReceipt{}, err
	}
	return rc, nil
}

func (r *repository) ListReceipts(ctx context.Context, orgID, customerID int64, pageNum, perPage int) ([]CustomerReceipt, shared.Pagination, error) {
	where := `WHERE org_id=$1`
	args := []any{orgID}
	if customerID != 0 {
		args = append(args, customerID)
		where += fmt.Sprintf(" AND customer_id=$%d", len(args))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customer_receipts `+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(pageNum, perPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT `+receiptColumns+` FROM customer_receipts %s ORDER BY received_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var receipts []CustomerReceipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		receipts = append(receipts, rc)
	}
	return receipts, page, rows.Err()
}

const noteColumns = `id, org_id, customer_id, amount, allocated_amount, refunded_amount, status,
journal_entry_id, created_by, created_at, updated_at`

func scanNote(row pgx.Row) (CustomerCreditNote, error) {
	var n CustomerCreditNote
	err := row.Scan(&n.ID, &n.OrgID, &n.CustomerID, &n.Amount, &n.AllocatedAmount, &n.RefundedAmount,
		&n.Status, &n.JournalEntryID, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CustomerCreditNote{}, fmt.Errorf("customer credit note: %w", shared.ErrNotFound)
		}
		return CustomerCreditNote{}, err
	}
	return n, nil
}

func (r *repository) InsertCreditNote(ctx context.Context, n CustomerCreditNote) (CustomerCreditNote, error) {
	return scanNote(r.pool.QueryRow(ctx, `INSERT INTO customer_credit_notes
(org_id, customer_id, amount, allocated_amount, refunded_amount, status, created_by)
VALUES ($1,$2,$3,0,0,$4,$5) RETURNING `+noteColumns,
		n.OrgID, n.CustomerID, n.Amount, n.Status, n.CreatedBy))
}

func (r *repository) GetCreditNote(ctx context.Context, orgID, noteID int64) (CustomerCreditNote, error) {
	return scanNote(r.pool.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM customer_credit_notes WHERE id=$1 AND org_id=$2`, noteID, orgID))
}

func (r *repository) ListCreditNotes(ctx context.Context, orgID, customerID int64, pageNum, perPage int) ([]CustomerCreditNote, shared.Pagination, error) {
	where := `WHERE org_id=$1`
	args := []any{orgID}
	if customerID != 0 {
		args = append(args, customerID)
		where += fmt.Sprintf(" AND customer_id=$%d", len(args))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customer_credit_notes `+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(pageNum, perPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT `+noteColumns+` FROM customer_credit_notes %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var notes []CustomerCreditNote
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		notes = append(notes, n)
	}
	return notes, page, rows.Err()
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, orgID, invoiceID int64) (CustomerInvoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM customer_invoices WHERE id=$1 AND org_id=$2 FOR UPDATE`, invoiceID, orgID))
}

func (r *txRepository) UpdateInvoice(ctx context.Context, i CustomerInvoice) (CustomerInvoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx, `UPDATE customer_invoices
SET paid_amount=$3, status=$4, journal_entry_id=$5, opened_by=$6, opened_at=$7, updated_at=NOW()
WHERE id=$1 AND org_id=$2 RETURNING `+invoiceColumns,
		i.ID, i.OrgID, i.PaidAmount, i.Status, i.JournalEntryID, i.OpenedBy, i.OpenedAt))
}

func (r *txRepository) InsertReceipt(ctx context.Context, rc CustomerReceipt) (CustomerReceipt, error) {
	return scanReceipt(r.tx.QueryRow(ctx, `INSERT INTO customer_receipts
(org_id, customer_id, invoice_id, amount, received_at, method, ref, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+receiptColumns,
		rc.OrgID, rc.CustomerID, rc.InvoiceID, rc.Amount, rc.ReceivedAt, rc.Method, rc.Ref, rc.CreatedBy))
}

func (r *txRepository) LinkReceiptEntry(ctx context.Context, receiptID, entryID int64) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE customer_receipts SET journal_entry_id=$2 WHERE id=$1`, receiptID, entryID)
	return err
}

func (r *txRepository) GetCreditNoteForUpdate(ctx context.Context, orgID, noteID int64) (CustomerCreditNote, error) {
	return scanNote(r.tx.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM customer_credit_notes WHERE id=$1 AND org_id=$2 FOR UPDATE`, noteID, orgID))
}

func (r *txRepository) UpdateCreditNote(ctx context.Context, n CustomerCreditNote) (CustomerCreditNote, error) {
	return scanNote(r.tx.QueryRow(ctx, `UPDATE customer_credit_notes
SET allocated_amount=$3, refunded_amount=$4, status=$5, journal_entry_id=$6, updated_at=NOW()
WHERE id=$1 AND org_id=$2 RETURNING `+noteColumns,
		n.ID, n.OrgID, n.AllocatedAmount, n.RefundedAmount, n.Status, n.JournalEntryID))
}

func (r *txRepository) InsertAllocation(ctx context.Context, a CreditAllocation) (CreditAllocation, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO ar_credit_allocations (credit_note_id, invoice_id, amount)
VALUES ($1,$2,$3) RETURNING id, credit_note_id, invoice_id, amount, created_at`,
		a.CreditNoteID, a.InvoiceID, a.Amount)
	var out CreditAllocation
	if err := row.Scan(&out.ID, &out.CreditNoteID, &out.InvoiceID, &out.Amount, &out.CreatedAt); err != nil {
		return CreditAllocation{}, err
	}
	return out, nil
}

func (r *txRepository) GetAllocation(ctx context.Context, orgID, allocationID int64) (CreditAllocation, error) {
	row := r.tx.QueryRow(ctx, `SELECT a.id, a.credit_note_id, a.invoice_id, a.amount, a.created_at
FROM ar_credit_allocations a
JOIN customer_credit_notes n ON n.id = a.credit_note_id
WHERE a.id=$1 AND n.org_id=$2 FOR UPDATE OF a`, allocationID, orgID)
	var a CreditAllocation
	if err := row.Scan(&a.ID, &a.CreditNoteID, &a.InvoiceID, &a.Amount, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreditAllocation{}, fmt.Errorf("credit allocation: %w", shared.ErrNotFound)
		}
		return CreditAllocation{}, err
	}
	return a, nil
}

func (r *txRepository) DeleteAllocation(ctx context.Context, allocationID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM ar_credit_allocations WHERE id=$1`, allocationID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("credit allocation %d: %w", allocationID, shared.ErrNotFound)
	}
	return nil
}

func (r *txRepository) InsertCreditRefund(ctx context.Context, ref CreditRefund) (CreditRefund, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO ar_credit_refunds (credit_note_id, amount, method)
VALUES ($1,$2,$3) RETURNING id, credit_note_id, amount, method, COALESCE(journal_entry_id, 0), created_at`,
		ref.CreditNoteID, ref.Amount, ref.Method)
	var out CreditRefund
	if err := row.Scan(&out.ID, &out.CreditNoteID, &out.Amount, &out.Method, &out.JournalEntryID, &out.CreatedAt); err != nil {
		return CreditRefund{}, err
	}
	return out, nil
}

func (r *txRepository) LinkCreditRefundEntry(ctx context.Context, refundID, entryID int64) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE ar_credit_refunds SET journal_entry_id=$2 WHERE id=$1`, refundID, entryID)
	return err
}
