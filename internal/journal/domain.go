package journal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianpos/meridian/internal/shared"
)

// EntryStatus enumerates journal lifecycle values. POSTED entries are
// append-only: the only further transition is REVERSED, which never deletes
// lines but links a new entry with swapped debits and credits.
type EntryStatus string

const (
	EntryStatusDraft    EntryStatus = "DRAFT"
	EntryStatusPosted   EntryStatus = "POSTED"
	EntryStatusReversed EntryStatus = "REVERSED"
)

// Source tags the business event behind an entry. Together with SourceID it
// forms the at-most-one-posting idempotency key.
type Source string

const (
	SourceManual               Source = "MANUAL"
	SourceOrder                Source = "ORDER"
	SourceCOGS                 Source = "COGS"
	SourceRefund               Source = "REFUND"
	SourceCashMovement         Source = "CASH_MOVEMENT"
	SourceVendorBill           Source = "VENDOR_BILL"
	SourceVendorBillVoid       Source = "VENDOR_BILL_VOID"
	SourceVendorPayment        Source = "VENDOR_PAYMENT"
	SourceVendorCreditNote     Source = "VENDOR_CREDIT_NOTE"
	SourceVendorCreditRefund   Source = "VENDOR_CREDIT_REFUND"
	SourceCustomerInvoice      Source = "CUSTOMER_INVOICE"
	SourceCustomerInvoiceVoid  Source = "CUSTOMER_INVOICE_VOID"
	SourceCustomerReceipt      Source = "CUSTOMER_RECEIPT"
	SourceCustomerCreditNote   Source = "CUSTOMER_CREDIT_NOTE"
	SourceCustomerCreditRefund Source = "CUSTOMER_CREDIT_REFUND"
	SourceReversal             Source = "REVERSAL"
)

// JournalEntry captures posting metadata and owns its lines.
type JournalEntry struct {
	ID              int64
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
	ReversedBy      *int64
	ReversedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Lines           []JournalLine
}

// JournalLine stores a debit or credit amount against an account.
type JournalLine struct {
	ID        int64
	EntryID   int64
	AccountID int64
	BranchID  *int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// LineInput is a line supplied by a caller.
type LineInput struct {
	AccountID int64
	BranchID  *int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// ValidateLines checks structural line rules and the balance invariant:
// at least two lines, non-negative single-sided amounts, and
// |sum(debit) - sum(credit)| within tolerance.
func ValidateLines(lines []LineInput) error {
	if len(lines) < 2 {
		return fmt.Errorf("journal entry requires at least two lines: %w", shared.ErrValidation)
	}
	var debits, credits decimal.Decimal
	for i, line := range lines {
		if line.AccountID == 0 {
			return fmt.Errorf("line %d: account is required: %w", i+1, shared.ErrValidation)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("line %d: negative amount: %w", i+1, shared.ErrValidation)
		}
		if line.Debit.IsZero() == line.Credit.IsZero() {
			return fmt.Errorf("line %d: exactly one of debit or credit must be set: %w", i+1, shared.ErrValidation)
		}
		debits = debits.Add(line.Debit)
		credits = credits.Add(line.Credit)
	}
	if !shared.WithinTolerance(debits, credits) {
		return fmt.Errorf("debits %s != credits %s: %w", debits.StringFixed(2), credits.StringFixed(2), shared.ErrUnbalancedEntry)
	}
	return nil
}

// reverseLines swaps every line's debit and credit.
func reverseLines(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID: line.AccountID,
			BranchID:  line.BranchID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	return out
}
