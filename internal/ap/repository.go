package ap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianpos/meridian/internal/platform/db"
	"github.com/meridianpos/meridian/internal/shared"
)

// Repository persists vendors, bills, payments, and credit notes.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertVendor(ctx context.Context, v Vendor) (Vendor, error)
	GetVendor(ctx context.Context, orgID, vendorID int64) (Vendor, error)
	UpdateVendor(ctx context.Context, v Vendor) (Vendor, error)
	ListVendors(ctx context.Context, orgID int64, search string, page, perPage int) ([]Vendor, shared.Pagination, error)
	InsertBill(ctx context.Context, b VendorBill) (VendorBill, error)
	GetBill(ctx context.Context, orgID, billID int64) (VendorBill, error)
	ListBills(ctx context.Context, orgID int64, filter BillFilter) ([]VendorBill, shared.Pagination, error)
	ListOutstandingBills(ctx context.Context, orgID int64) ([]VendorBill, error)
	ListPayments(ctx context.Context, orgID, vendorID int64, page, perPage int) ([]VendorPayment, shared.Pagination, error)
	InsertCreditNote(ctx context.Context, n VendorCreditNote) (VendorCreditNote, error)
	GetCreditNote(ctx context.Context, orgID, noteID int64) (VendorCreditNote, error)
	ListCreditNotes(ctx context.Context, orgID, vendorID int64, page, perPage int) ([]VendorCreditNote, shared.Pagination, error)
}

// TxRepository exposes the operations that must share one transaction.
type TxRepository interface {
	GetBillForUpdate(ctx context.Context, orgID, billID int64) (VendorBill, error)
	UpdateBill(ctx context.Context, b VendorBill) (VendorBill, error)
	InsertPayment(ctx context.Context, p VendorPayment) (VendorPayment, error)
	LinkPaymentEntry(ctx context.Context, paymentID, entryID int64) error
	GetCreditNoteForUpdate(ctx context.Context, orgID, noteID int64) (VendorCreditNote, error)
	UpdateCreditNote(ctx context.Context, n VendorCreditNote) (VendorCreditNote, error)
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

const vendorColumns = `id, org_id, name, phone, email, is_active, created_at, updated_at`

func scanVendor(row pgx.Row) (Vendor, error) {
	var v Vendor
	err := row.Scan(&v.ID, &v.OrgID, &v.Name, &v.Phone, &v.Email, &v.IsActive, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vendor{}, fmt.Errorf("vendor: %w", shared.ErrNotFound)
		}
		return Vendor{}, err
	}
	return v, nil
}

func (r *repository) InsertVendor(ctx context.Context, v Vendor) (Vendor, error) {
	return scanVendor(r.pool.QueryRow(ctx, `INSERT INTO vendors (org_id, name, phone, email, is_active)
VALUES ($1,$2,$3,$4,$5) RETURNING `+vendorColumns,
		v.OrgID, v.Name, v.Phone, v.Email, v.IsActive))
}

func (r *repository) GetVendor(ctx context.Context, orgID, vendorID int64) (Vendor, error) {
	return scanVendor(r.pool.QueryRow(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE id=$1 AND org_id=$2`, vendorID, orgID))
}

func (r *repository) UpdateVendor(ctx context.Context, v Vendor) (Vendor, error) {
	return scanVendor(r.pool.QueryRow(ctx, `UPDATE vendors
SET name=$3, phone=$4, email=$5, is_active=$6, updated_at=NOW()
WHERE id=$1 AND org_id=$2 RETURNING `+vendorColumns,
		v.ID, v.OrgID, v.Name, v.Phone, v.Email, v.IsActive))
}

func (r *repository) ListVendors(ctx context.Context, orgID int64, search string, pageNum, perPage int) ([]Vendor, shared.Pagination, error) {
	where := `WHERE org_id=$1`
	args := []any{orgID}
	if search != "" {
		args = append(args, "%"+search+"%")
		where += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vendors `+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(pageNum, perPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT `+vendorColumns+` FROM vendors %s ORDER BY name LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var vendors []Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		vendors = append(vendors, v)
	}
	return vendors, page, rows.Err()
}

const billColumns = `id, org_id, vendor_id, number, bill_date, due_date, subtotal, tax, total,
paid_amount, status, journal_entry_id, opened_by, opened_at, created_at, updated_at`

func scanBill(row pgx.Row) (VendorBill, error) {
	var b VendorBill
	err := row.Scan(&b.ID, &b.OrgID, &b.VendorID, &b.Number, &b.BillDate, &b.DueDate, &b.Subtotal, &b.Tax,
		&b.Total, &b.PaidAmount, &b.Status, &b.JournalEntryID, &b.OpenedBy, &b.OpenedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VendorBill{}, fmt.Errorf("vendor bill: %w", shared.ErrNotFound)
		}
		return VendorBill{}, err
	}
	return b, nil
}

func (r *repository) InsertBill(ctx context.Context, b VendorBill) (VendorBill, error) {
	return scanBill(r.pool.QueryRow(ctx, `INSERT INTO vendor_bills
(org_id, vendor_id, number, bill_date, due_date, subtotal, tax, total, paid_amount, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9) RETURNING `+billColumns,
		b.OrgID, b.VendorID, b.Number, b.BillDate, b.DueDate, b.Subtotal, b.Tax, b.Total, b.Status))
}

func (r *repository) GetBill(ctx context.Context, orgID, billID int64) (VendorBill, error) {
	return scanBill(r.pool.QueryRow(ctx,
		`SELECT `+billColumns+` FROM vendor_bills WHERE id=$1 AND org_id=$2`, billID, orgID))
}

func (r *repository) ListBills(ctx context.Context, orgID int64, filter BillFilter) ([]VendorBill, shared.Pagination, error) {
	where := `WHERE org_id=$1`
	args := []any{orgID}
	if filter.VendorID != 0 {
		args = append(args, filter.VendorID)
		where += fmt.Sprintf(" AND vendor_id=$%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status=$%d", len(args))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vendor_bills `+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT `+billColumns+` FROM vendor_bills %s ORDER BY bill_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var bills []VendorBill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		bills = append(bills, b)
	}
	return bills, page, rows.Err()
}

func (r *repository) ListOutstandingBills(ctx context.Context, orgID int64) ([]VendorBill, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+billColumns+` FROM vendor_bills WHERE org_id=$1 AND status IN ('OPEN','PARTIALLY_PAID') ORDER BY due_date`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bills []VendorBill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

const paymentColumns = `id, org_id, vendor_id, bill_id, amount, paid_at, method, ref, journal_entry_id, created_by, created_at`

func scanPayment(row pgx.Row) (VendorPayment, error) {
	var p VendorPayment
	err := row.Scan(&p.ID, &p.OrgID, &p.VendorID, &p.BillID, &p.Amount, &p.PaidAt, &p.Method, &p.Ref,
		&p.JournalEntryID, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VendorPayment{}, fmt.Errorf("vendor payment: %w", shared.ErrNotFound)
		}
		return VendorPayment{}, err
	}
	return p, nil
}

func (r *repository) ListPayments(ctx context.Context, orgID, vendorID int64, pageNum, perPage int) ([]VendorPayment, shared.Pagination, error) {
	where := `WHERE org_id=$1`
	args := []any{orgID}
	if vendorID != 0 {
		args = append(args, vendorID)
		where += fmt.Sprintf(" AND vendor_id=$%d", len(args))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vendor_payments `+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(pageNum, perPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT `+paymentColumns+` FROM vendor_payments %s ORDER BY paid_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var payments []VendorPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		payments = append(payments, p)
	}
	return payments, page, rows.Err()
}

const noteColumns = `id, org_id, vendor_id, amount, allocated_amount, refunded_amount, status,
journal_entry_id, created_by, created_at, updated_at`

func scanNote(row pgx.Row) (VendorCreditNote, error) {
	var n VendorCreditNote
	err := row.Scan(&n.ID, &n.OrgID, &n.VendorID, &n.Amount, &n.AllocatedAmount, &n.RefundedAmount,
		&n.Status, &n.JournalEntryID, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VendorCreditNote{}, fmt.Errorf("vendor credit note: %w", shared.ErrNotFound)
		}
		return VendorCreditNote{}, err
	}
	return n, nil
}

func (r *repository) InsertCreditNote(ctx context.Context, n VendorCreditNote) (VendorCreditNote, error) {
	return scanNote(r.pool.QueryRow(ctx, `INSERT INTO vendor_credit_notes
(org_id, vendor_id, amount, allocated_amount, refunded_amount, status, created_by)
VALUES ($1,$2,$3,0,0,$4,$5) RETURNING `+noteColumns,
		n.OrgID, n.VendorID, n.Amount, n.Status, n.CreatedBy))
}

func (r *repository) GetCreditNote(ctx context.Context, orgID, noteID int64) (VendorCreditNote, error) {
	return scanNote(r.pool.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM vendor_credit_notes WHERE id=$1 AND org_id=$2`, noteID, orgID))
}

func (r *repository) ListCreditNotes(ctx context.Context, orgID, vendorID int64, pageNum, perPage int) ([]VendorCreditNote, shared.Pagination, error) {
	where := `WHERE org_id=$1`
	args := []any{orgID}
	if vendorID != 0 {
		args = append(args, vendorID)
		where += fmt.Sprintf(" AND vendor_id=$%d", len(args))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vendor_credit_notes `+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(pageNum, perPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT `+noteColumns+` FROM vendor_credit_notes %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var notes []VendorCreditNote
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		notes = append(notes, n)
	}
	return notes, page, rows.Err()
}

func (r *txRepository) GetBillForUpdate(ctx context.Context, orgID, billID int64) (VendorBill, error) {
	return scanBill(r.tx.QueryRow(ctx,
		`SELECT `+billColumns+` FROM vendor_bills WHERE id=$1 AND org_id=$2 FOR UPDATE`, billID, orgID))
}

func (r *txRepository) UpdateBill(ctx context.Context, b VendorBill) (VendorBill, error) {
	return scanBill(r.tx.QueryRow(ctx, `UPDATE vendor_bills
SET paid_amount=$3, status=$4, journal_entry_id=$5, opened_by=$6, opened_at=$7, updated_at=NOW()
WHERE id=$1 AND org_id=$2 RETURNING `+billColumns,
		b.ID, b.OrgID, b.PaidAmount, b.Status, b.JournalEntryID, b.OpenedBy, b.OpenedAt))
}

func (r *txRepository) InsertPayment(ctx context.Context, p VendorPayment) (VendorPayment, error) {
	return scanPayment(r.tx.QueryRow(ctx, `INSERT INTO vendor_payments
(org_id, vendor_id, bill_id, amount, paid_at, method, ref, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+paymentColumns,
		p.OrgID, p.VendorID, p.BillID, p.Amount, p.PaidAt, p.Method, p.Ref, p.CreatedBy))
}

func (r *txRepository) LinkPaymentEntry(ctx context.Context, paymentID, entryID int64) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE vendor_payments SET journal_entry_id=$2 WHERE id=$1`, paymentID, entryID)
	return err
}

func (r *txRepository) GetCreditNoteForUpdate(ctx context.Context, orgID, noteID int64) (VendorCreditNote, error) {
	return scanNote(r.tx.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM vendor_credit_notes WHERE id=$1 AND org_id=$2 FOR UPDATE`, noteID, orgID))
}

func (r *txRepository) UpdateCreditNote(ctx context.Context, n VendorCreditNote) (VendorCreditNote, error) {
	return scanNote(r.tx.QueryRow(ctx, `UPDATE vendor_credit_notes
SET allocated_amount=$3, refunded_amount=$4, status=$5, journal_entry_id=$6, updated_at=NOW()
WHERE id=$1 AND org_id=$2 RETURNING `+noteColumns,
		n.ID, n.OrgID, n.AllocatedAmount, n.RefundedAmount, n.Status, n.JournalEntryID))
}

const allocationColumns = `a.id, a.credit_note_id, a.bill_id, a.amount, a.created_at`

func (r *txRepository) InsertAllocation(ctx context.Context, a CreditAllocation) (CreditAllocation, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO ap_credit_allocations (credit_note_id, bill_id, amount)
VALUES ($1,$2,$3) RETURNING id, credit_note_id, bill_id, amount, created_at`,
		a.CreditNoteID, a.BillID, a.Amount)
	var out CreditAllocation
	if err := row.Scan(&out.ID, &out.CreditNoteID, &out.BillID, &out.Amount, &out.CreatedAt); err != nil {
		return CreditAllocation{}, err
	}
	return out, nil
}

func (r *txRepository) GetAllocation(ctx context.Context, orgID, allocationID int64) (CreditAllocation, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+allocationColumns+`
FROM ap_credit_allocations a
JOIN vendor_credit_notes n ON n.id = a.credit_note_id
WHERE a.id=$1 AND n.org_id=$2 FOR UPDATE OF a`, allocationID, orgID)
	var a CreditAllocation
	if err := row.Scan(&a.ID, &a.CreditNoteID, &a.BillID, &a.Amount, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreditAllocation{}, fmt.Errorf("credit allocation: %w", shared.ErrNotFound)
		}
		return CreditAllocation{}, err
	}
	return a, nil
}

func (r *txRepository) DeleteAllocation(ctx context.Context, allocationID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM ap_credit_allocations WHERE id=$1`, allocationID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("credit allocation %d: %w", allocationID, shared.ErrNotFound)
	}
	return nil
}

func (r *txRepository) InsertCreditRefund(ctx context.Context, ref CreditRefund) (CreditRefund, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO ap_credit_refunds (credit_note_id, amount, method)
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
		`UPDATE ap_credit_refunds SET journal_entry_id=$2 WHERE id=$1`, refundID, entryID)
	return err
}
