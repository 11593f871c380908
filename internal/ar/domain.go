package ar

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianpos/meridian/internal/shared"
)

// Customer is a counterparty the org extends credit to, typically a catering
// or corporate account rather than a walk-in guest.
type Customer struct {
	ID        int64
	OrgID     int64
	Name      string
	Phone     string
	Email     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InvoiceStatus enumerates customer invoice lifecycle values.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "DRAFT"
	InvoiceStatusOpen          InvoiceStatus = "OPEN"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusVoid          InvoiceStatus = "VOID"
)

// CustomerInvoice tracks a receivable and its settlement lifecycle.
type CustomerInvoice struct {
	ID             int64
	OrgID          int64
	CustomerID     int64
	Number         string
	InvoiceDate    time.Time
	DueDate        time.Time
	Subtotal       decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	PaidAmount     decimal.Decimal
	Status         InvoiceStatus
	JournalEntryID *int64
	OpenedBy       *int64
	OpenedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Outstanding returns the uncollected portion.
func (i CustomerInvoice) Outstanding() decimal.Decimal {
	return i.Total.Sub(i.PaidAmount)
}

func deriveInvoiceStatus(paid, total decimal.Decimal) InvoiceStatus {
	switch {
	case paid.LessThanOrEqual(decimal.Zero):
		return InvoiceStatusOpen
	case shared.CoversWithTolerance(paid, total):
		return InvoiceStatusPaid
	default:
		return InvoiceStatusPartiallyPaid
	}
}

// CustomerReceipt records money collected against an invoice (or on account
// when InvoiceID is nil). Every receipt owns exactly one journal entry.
type CustomerReceipt struct {
	ID             int64
	OrgID          int64
	CustomerID     int64
	InvoiceID      *int64
	Amount         decimal.Decimal
	ReceivedAt     time.Time
	Method         string
	Ref            string
	JournalEntryID int64
	CreatedBy      int64
	CreatedAt      time.Time
}

// CreditNoteStatus enumerates customer credit note lifecycle values.
type CreditNoteStatus string

const (
	CreditNoteStatusDraft            CreditNoteStatus = "DRAFT"
	CreditNoteStatusOpen             CreditNoteStatus = "OPEN"
	CreditNoteStatusPartiallyApplied CreditNoteStatus = "PARTIALLY_APPLIED"
	CreditNoteStatusApplied          CreditNoteStatus = "APPLIED"
	CreditNoteStatusVoid             CreditNoteStatus = "VOID"
)

// CustomerCreditNote reduces what a customer owes, later allocated to
// specific invoices or refunded as cash.
type CustomerCreditNote struct {
	ID              int64
	OrgID           int64
	CustomerID      int64
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
func (n CustomerCreditNote) Remaining() decimal.Decimal {
	return n.Amount.Sub(n.AllocatedAmount).Sub(n.RefundedAmount)
}

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

// CreditAllocation applies part of a credit note against one invoice.
// Allocation creates no journal lines; the GL effect happened at open.
type CreditAllocation struct {
	ID           int64
	CreditNoteID int64
	InvoiceID    int64
	Amount       decimal.Decimal
	CreatedAt    time.Time
}

// CreditRefund is a cash-out of remaining credit to the customer.
type CreditRefund struct {
	ID             int64
	CreditNoteID   int64
	Amount         decimal.Decimal
	Method         string
	JournalEntryID int64
	CreatedAt      time.Time
}

// Aging buckets outstanding invoice balances by days overdue.
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
