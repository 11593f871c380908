package shared

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates a missing account, bill, invoice, credit note or period.
	ErrNotFound = errors.New("ledger: not found")
	// ErrValidation indicates malformed input such as a non-positive amount.
	ErrValidation = errors.New("ledger: validation failed")
	// ErrUnbalancedEntry indicates journal debits do not equal credits.
	ErrUnbalancedEntry = errors.New("ledger: journal lines must balance")
	// ErrInvalidState indicates an illegal lifecycle transition.
	ErrInvalidState = errors.New("ledger: invalid status transition")
	// ErrPeriodLocked indicates a mutation against a LOCKED fiscal period.
	ErrPeriodLocked = errors.New("ledger: period locked")
	// ErrInsufficientBalance indicates a payment, allocation or refund exceeding the outstanding amount.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrMissingAccountMapping indicates a required GL account is not configured for the org.
	ErrMissingAccountMapping = errors.New("ledger: account mapping not configured")
	// ErrDuplicateOverlap indicates overlapping fiscal period date ranges.
	ErrDuplicateOverlap = errors.New("ledger: period dates overlap an existing period")
	// ErrForbidden indicates a privileged operation attempted without the capability.
	ErrForbidden = errors.New("ledger: forbidden")
	// ErrInvalidFormat indicates an unparseable bank statement import.
	ErrInvalidFormat = errors.New("ledger: invalid statement format")
	// ErrAlreadyReconciled indicates the bank transaction already has a match.
	ErrAlreadyReconciled = errors.New("ledger: bank transaction already reconciled")
)

// PeriodLockedError names the locked period so finance staff know what to reopen.
type PeriodLockedError struct {
	Period string
	Date   time.Time
}

func (e *PeriodLockedError) Error() string {
	return fmt.Sprintf("period %q is locked for date %s", e.Period, e.Date.Format("2006-01-02"))
}

func (e *PeriodLockedError) Unwrap() error { return ErrPeriodLocked }

// MissingAccountMappingError names the missing GL mapping key.
type MissingAccountMappingError struct {
	OrgID int64
	Key   string
}

func (e *MissingAccountMappingError) Error() string {
	return fmt.Sprintf("no account mapped for %q in org %d", e.Key, e.OrgID)
}

func (e *MissingAccountMappingError) Unwrap() error { return ErrMissingAccountMapping }

// InsufficientBalanceError reports the outstanding amount against the requested one.
type InsufficientBalanceError struct {
	Outstanding decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("requested %s exceeds outstanding %s", e.Requested.StringFixed(2), e.Outstanding.StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }
