package posting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridianpos/meridian/internal/journal"
	"github.com/meridianpos/meridian/internal/mappings"
	"github.com/meridianpos/meridian/internal/shared"
)

// Ledger is the journal surface the adapter posts through.
type Ledger interface {
	PostDirect(ctx context.Context, in journal.PostingInput) (journal.JournalEntry, error)
}

// AccountResolver resolves org-configured GL accounts by mapping key.
type AccountResolver interface {
	Resolve(ctx context.Context, orgID int64, key string) (int64, error)
	ResolveMethod(ctx context.Context, orgID int64, method mappings.PaymentMethod) (int64, error)
}

// Service translates operational POS events into balanced journal entries.
// It holds no state of its own; every event becomes exactly one PostDirect
// call keyed on the event's id.
type Service struct {
	logger   *slog.Logger
	ledger   Ledger
	accounts AccountResolver
	now      func() time.Time
}

func NewService(logger *slog.Logger, ledger Ledger, accounts AccountResolver) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, ledger: ledger, accounts: accounts, now: time.Now}
}

// Post forwards a caller-assembled request. Used by workflows that manage
// their own account resolution but still want the central idempotency guard.
func (s *Service) Post(ctx context.Context, orgID int64, req Request, userID int64) (journal.JournalEntry, error) {
	if req.Source == "" || req.SourceID == "" {
		return journal.JournalEntry{}, fmt.Errorf("source and sourceId are required: %w", shared.ErrValidation)
	}
	date := req.Date
	if date.IsZero() {
		date = s.now()
	}
	return s.ledger.PostDirect(ctx, journal.PostingInput{
		OrgID:    orgID,
		BranchID: req.BranchID,
		Date:     date,
		Memo:     req.Memo,
		Source:   req.Source,
		SourceID: req.SourceID,
		Lines:    req.Lines,
		UserID:   userID,
	})
}

// SaleClosed books revenue for a closed order: Debit the tender's cash or
// clearing account, Credit sales revenue.
func (s *Service) SaleClosed(ctx context.Context, orgID int64, ev SaleClosedEvent, userID int64) (journal.JournalEntry, error) {
	if ev.OrderID == uuid.Nil {
		return journal.JournalEntry{}, fmt.Errorf("order id is required: %w", shared.ErrValidation)
	}
	if !ev.Gross.IsPositive() {
		return journal.JournalEntry{}, fmt.Errorf("sale amount must be positive: %w", shared.ErrValidation)
	}
	tenderID, err := s.accounts.ResolveMethod(ctx, orgID, ev.Method)
	if err != nil {
		return journal.JournalEntry{}, err
	}
	revenueID, err := s.accounts.Resolve(ctx, orgID, mappings.KeySalesRevenue)
	if err != nil {
		return journal.JournalEntry{}, err
	}
	return s.Post(ctx, orgID, Request{
		Source:   journal.SourceOrder,
		SourceID: ev.OrderID.String(),
		BranchID: ev.BranchID,
		Date:     ev.OccurredAt,
		Memo:     fmt.Sprintf("Sale %s", ev.OrderID),
		Lines: []journal.LineInput{
			{AccountID: tenderID, BranchID: ev.BranchID, Debit: ev.Gross},
			{AccountID: revenueID, BranchID: ev.BranchID, Credit: ev.Gross},
		},
	}, userID)
}

// COGSRecognized books the cost side of a closed order: Debit COGS, Credit
// inventory.
func (s *Service) COGSRecognized(ctx context.Context, orgID int64, ev COGSEvent, userID int64) (journal.JournalEntry, error) {
	if ev.OrderID == uuid.Nil {
		return journal.JournalEntry{}, fmt.Errorf("order id is required: %w", shared.ErrValidation)
	}
	if !ev.Cost.IsPositive() {
		return journal.JournalEntry{}, fmt.Errorf("cost must be positive: %w", shared.ErrValidation)
	}
	cogsID, err := s.accounts.Resolve(ctx, orgID, mappings.KeyCOGS)
	if err != nil {
		return journal.JournalEntry{}, err
	}
	inventoryID, err := s.accounts.Resolve(ctx, orgID, mappings.KeyInventory)
	if err != nil {
		return journal.JournalEntry{}, err
	}
	return s.Post(ctx, orgID, Request{
		Source:   journal.SourceCOGS,
		SourceID: ev.OrderID.String(),
		BranchID: ev.BranchID,
		Date:     ev.OccurredAt,
		Memo:     fmt.Sprintf("COGS for sale %s", ev.OrderID),
		Lines: []journal.LineInput{
			{AccountID: cogsID, BranchID: ev.BranchID, Debit: ev.Cost},
			{AccountID: inventoryID, BranchID: ev.BranchID, Credit: ev.Cost},
		},
	}, userID)
}

// RefundIssued books money returned to a guest: Debit sales adjustment,
// Credit the tender account the money left through.
func (s *Service) RefundIssued(ctx context.Context, orgID int64, ev RefundEvent, userID int64) (journal.JournalEntry, error) {
	if ev.RefundID == uuid.Nil {
		return journal.JournalEntry{}, fmt.Errorf("refund id is required: %w", shared.ErrValidation)
	}
	if !ev.Amount.IsPositive() {
		return journal.JournalEntry{}, fmt.Errorf("refund amount must be positive: %w", shared.ErrValidation)
	}
	adjustmentID, err := s.accounts.Resolve(ctx, orgID, mappings.KeySalesAdjustment)
	if err != nil {
		return journal.JournalEntry{}, err
	}
	tenderID, err := s.accounts.ResolveMethod(ctx, orgID, ev.Method)
	if err != nil {
		return journal.JournalEntry{}, err
	}
	return s.Post(ctx, orgID, Request{
		Source:   journal.SourceRefund,
		SourceID: ev.RefundID.String(),
		BranchID: ev.BranchID,
		Date:     ev.OccurredAt,
		Memo:     fmt.Sprintf("Refund %s", ev.RefundID),
		Lines: []journal.LineInput{
			{AccountID: adjustmentID, BranchID: ev.BranchID, Debit: ev.Amount},
			{AccountID: tenderID, BranchID: ev.BranchID, Credit: ev.Amount},
		},
	}, userID)
}

// CashMovement books drawer events. Safe drops and pickups move money
// between the drawer float and the bank; over and short settle counted
// discrepancies against the over/short account.
func (s *Service) CashMovement(ctx context.Context, orgID int64, ev CashMovementEvent, userID int64) (journal.JournalEntry, error) {
	if ev.MovementID == uuid.Nil {
		return journal.JournalEntry{}, fmt.Errorf("movement id is required: %w", shared.ErrValidation)
	}
	if !ev.Amount.IsPositive() {
		return journal.JournalEntry{}, fmt.Errorf("movement amount must be positive: %w", shared.ErrValidation)
	}
	drawerID, err := s.accounts.Resolve(ctx, orgID, mappings.KeyCashDefault)
	if err != nil {
		return journal.JournalEntry{}, err
	}
	var debit, credit int64
	switch ev.Kind {
	case MovementSafeDrop:
		bankID, err := s.accounts.ResolveMethod(ctx, orgID, mappings.MethodBankTransfer)
		if err != nil {
			return journal.JournalEntry{}, err
		}
		debit, credit = bankID, drawerID
	case MovementPickup:
		bankID, err := s.accounts.ResolveMethod(ctx, orgID, mappings.MethodBankTransfer)
		if err != nil {
			return journal.JournalEntry{}, err
		}
		debit, credit = drawerID, bankID
	case MovementOver:
		overShortID, err := s.accounts.Resolve(ctx, orgID, mappings.KeyCashOverShort)
		if err != nil {
			return journal.JournalEntry{}, err
		}
		debit, credit = drawerID, overShortID
	case MovementShort:
		overShortID, err := s.accounts.Resolve(ctx, orgID, mappings.KeyCashOverShort)
		if err != nil {
			return journal.JournalEntry{}, err
		}
		debit, credit = overShortID, drawerID
	default:
		return journal.JournalEntry{}, fmt.Errorf("unknown cash movement kind %q: %w", ev.Kind, shared.ErrValidation)
	}
	return s.Post(ctx, orgID, Request{
		Source:   journal.SourceCashMovement,
		SourceID: ev.MovementID.String(),
		BranchID: ev.BranchID,
		Date:     ev.OccurredAt,
		Memo:     fmt.Sprintf("Cash movement %s (%s)", ev.MovementID, ev.Kind),
		Lines: []journal.LineInput{
			{AccountID: debit, BranchID: ev.BranchID, Debit: ev.Amount},
			{AccountID: credit, BranchID: ev.BranchID, Credit: ev.Amount},
		},
	}, userID)
}
