package ap

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianpos/meridian/internal/shared"
)

// Vendor is a supplier the org owes money to.
type Vendor struct {
	ID        int64
	OrgID     int64
	Name      string
	Phone     string
	Email     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BillStatus enumerates vendor bill lifecycle values. VOID is terminal and
// excludes further payment; the rest derive purely from paidAmount vs total.
type BillStatus string

const (
	BillStatusDraft         BillStatus = "DRAFT"
	BillStatusOpen          BillStatus = "OPEN"
	BillStatusPartiallyPaid BillStatus = "PARTIALLY_PAID"
	BillStatusPaid          BillStatus = "PAID"
	BillStatusVoid          BillStatus = "VOID"
)

// VendorBill tracks an obligation to a vendor and its settlement lifecycle.
type VendorBill struct {
	ID             int64
	OrgID          int64
	VendorID       int64
	Number         string
	BillDate       time.Time
	DueDate        time.Time
	Subtotal       decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	PaidAmount     decimal.Decimal
	Status         BillStatus
	JournalEntryID *int64
	OpenedBy       *int64
	OpenedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Outstanding returns the unpaid portion.
func (b VendorBill) Outstanding() decimal.Decimal {
	return b.Total.Sub(b.PaidAmount)
}

// deriveBillStatus is the pure paidAmount->status function. It is re-applied
// after every mutation inside the same transaction so status never drifts.
func deriveBillStatus(paid, total decimal.Decimal) BillStatus {
	switch {
	case paid.LessThanOrEqual(decimal.Zero):
		return BillStatusOpen
	case shared.CoversWithTolerance(paid, total):
		return BillStatusPaid
	default:
		return BillStatusPartiallyPaid
	}
}

// VendorPayment records money paid out against a bill (or on account when
// BillID is nil). Every payment owns exactly one journal entry.
type VendorPayment struct {
	ID             int64
	OrgID          int64
	VendorID       int64
	BillID         *int64
	Amount         decimal.Decimal
	PaidAt         time.Time
	Method         string
	Ref            string
	JournalEntryID int64
	CreatedBy      int64
	CreatedAt      time.Time
}

// CreditNoteStatus enumerates vendor credit note lifecycle values.
type CreditNoteStatus string

const (
	CreditNoteStatusDraft            CreditNoteStatus = "DRAFT"
	CreditNoteStatusOpen             CreditNoteStatus = "OPEN"
	CreditNoteStatusPartiallyApplied CreditNoteStatus = "PARTIALLY_APPLIED"
	CreditNoteStatusApplied          CreditNoteStatus = "APPLIED"
	CreditNoteStatusVoid             CreditNoteStatus = "VOID"
)

// VendorCreditNote is a non-cash adjustment reducing what the org owes a
// vendor, later allocated to specific bills or refunded as cash.
type VendorCreditNote struct {
	ID              int64
	OrgID           int64
	VendorID        int64
	Amount          decimal.Decimal
	AllocatedAmount decimal.Decimal
	RefundedAmount  decimal.Decimal
	Status          CreditNoteStatus
	JournalEntryID  *int64
	CreatedBy       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Remaining returns the credit not yet allocated or refunded.
func (n VendorCreditNote) Remaining() decimal.Decimal {
	return n.Amount.Sub(n.AllocatedAmount).Sub(n.RefundedAmount)
}

// deriveCreditNoteStatus derives status from the used portion of the credit.
func deriveCreditNoteStatus(used, amount decimal.Decimal) CreditNoteStatus {
	switch {
	case used.LessThanOrEqual(decimal.Zero):
		return CreditNoteStatusOpen
	case shared.CoversWithTolerance(used, amount):
		return CreditNoteStatusApplied
	default:
		return CreditNoteStatusPartiallyApplied
	}
}

// CreditAllocation applies part of a credit note against one bill. Allocation
// creates no journal lines; the GL effect happened when the note was opened.
type CreditAllocation struct {
	ID           int64
	CreditNoteID int64
	BillID       int64
	Amount       decimal.Decimal
	CreatedAt    time.Time
}

// CreditRefund is a cash-in of remaining credit from the vendor.
type CreditRefund struct {
	ID             int64
	CreditNoteID   int64
	Amount         decimal.Decimal
	Method         string
	JournalEntryID int64
	CreatedAt      time.Time
}

// Aging buckets outstanding bill balances by days overdue relative to DueDate.
type Aging struct {
	Days0To30  decimal.Decimal `json:"days0to30"`
	Days31To60 decimal.Decimal `json:"days31to60"`
	Days61To90 decimal.Decimal `json:"days61to90"`
	Days90Plus decimal.Decimal `json:"days90plus"`
	Total      decimal.Decimal `json:"total"`
}

func (a *Aging) add(daysOverdue int, balance decimal.Decimal) {
	switch {
	case daysOverdue <= 30:
		a.Days0To30 = a.Days0To30.Add(balance)
	case daysOverdue <= 60:
		a.Days31To60 = a.Days31To60.Add(balance)
	case daysOverdue <= 90:
		a.Days61To90 = a.Days61To90.Add(balance)
	default:
		a.Days90Plus = a.Days90Plus.Add(balance)
	}
	a.Total = a.Total.Add(balance)
}
