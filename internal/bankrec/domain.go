package bankrec

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankAccount is an external bank account statements are imported for.
type BankAccount struct {
	ID            int64
	OrgID         int64
	Name          string
	AccountNumber string
	Currency      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BankTxn is one imported statement row. Reconciled flips to true when a
// match is recorded and never flips back.
type BankTxn struct {
	ID            int64
	BankAccountID int64
	Date          time.Time
	Amount        decimal.Decimal
	Description   string
	Ref           string
	Reconciled    bool
	CreatedAt     time.Time
}

// MatchSource tags the internal record a bank row is matched against.
type MatchSource string

const (
	MatchSourcePayment  MatchSource = "PAYMENT"
	MatchSourceRefund   MatchSource = "REFUND"
	MatchSourceSafeDrop MatchSource = "CASH_SAFE_DROP"
	MatchSourcePickup   MatchSource = "CASH_PICKUP"
)

// Valid reports whether the source tag is one of the allowed values.
func (s MatchSource) Valid() bool {
	switch s {
	case MatchSourcePayment, MatchSourceRefund, MatchSourceSafeDrop, MatchSourcePickup:
		return true
	}
	return false
}

// ReconcileMatch links one bank transaction to exactly one internal record.
type ReconcileMatch struct {
	ID        int64
	BankTxnID int64
	Source    MatchSource
	SourceID  string
	MatchedBy int64
	CreatedAt time.Time
}

// StatementRow is a normalized row produced by the statement parser.
type StatementRow struct {
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	Ref         string
}
