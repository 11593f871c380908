package ar

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/meridianpos/meridian/internal/journal"
	"github.com/meridianpos/meridian/internal/mappings"
	"github.com/meridianpos/meridian/internal/shared"
)

// AllocationInput applies part of a credit note to one invoice.
type AllocationInput struct {
	InvoiceID int64
	Amount    decimal.Decimal
}

// CreateCreditNote records a DRAFT customer credit note.
func (s *Service) CreateCreditNote(ctx context.Context, orgID, customerID int64, amount decimal.Decimal, userID int64) (CustomerCreditNote, error) {
	if !amount.IsPositive() {
		return CustomerCreditNote{}, fmt.Errorf("credit note amount must be positive: %w", shared.ErrValidation)
	}
	if _, err := s.repo.GetCustomer(ctx, orgID, customerID); err != nil {
		return CustomerCreditNote{}, err
	}
	return s.repo.InsertCreditNote(ctx, CustomerCreditNote{
		OrgID:      orgID,
		CustomerID: customerID,
		Amount:     amount,
		Status:     CreditNoteStatusDraft,
		CreatedBy:  userID,
	})
}

func (s *Service) GetCreditNote(ctx context.Context, orgID, noteID int64) (CustomerCreditNote, error) {
	return s.repo.GetCreditNote(ctx, orgID, noteID)
}

func (s *Service) ListCreditNotes(ctx context.Context, orgID, customerID int64, page, perPage int) ([]CustomerCreditNote, shared.Pagination, error) {
	return s.repo.ListCreditNotes(ctx, orgID, customerID, page, perPage)
}

// OpenCreditNote posts the receivable reduction (Debit sales adjustment,
// Credit AR control) and flips the note DRAFT -> OPEN.
func (s *Service) OpenCreditNote(ctx context.Context, orgID, noteID, userID int64) (CustomerCreditNote, error) {
	adjustmentID, err := s.accounts.Resolve(ctx, orgID, mappings.KeySalesAdjustment)
	if err != nil {
		return CustomerCreditNote{}, err
	}
	arControlID, err := s.accounts.Resolve(ctx, orgID, mappings.KeyARControl)
	if err != nil {
		return CustomerCreditNote{}, err
	}
	var note CustomerCreditNote
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetCreditNoteForUpdate(ctx, orgID, noteID)
		if err != nil {
			return err
		}
		if current.Status != CreditNoteStatusDraft {
			return fmt.Errorf("credit note %d is %s, only drafts can be opened: %w", noteID, current.Status, shared.ErrInvalidState)
		}
		entry, err := s.ledger.PostDirect(ctx, journal.PostingInput{
			OrgID:    orgID,
			Date:     s.now(),
			Memo:     fmt.Sprintf("Customer credit note %d", current.ID),
			Source:   journal.SourceCustomerCreditNote,
			SourceID: strconv.FormatInt(current.ID, 10),
			Lines: []journal.LineInput{
				{AccountID: adjustmentID, Debit: current.Amount},
				{AccountID: arControlID, Credit: current.Amount},
			},
			UserID: userID,
		})
		if err != nil {
			return err
		}
		current.Status = CreditNoteStatusOpen
		current.JournalEntryID = &entry.ID
		note, err = tx.UpdateCreditNote(ctx, current)
		return err
	})
	if err != nil {
		return CustomerCreditNote{}, err
	}
	s.recordAudit(ctx, orgID, userID, "ar.credit_note.open", note.ID, map[string]any{"amount": note.Amount.StringFixed(2)})
	return note, nil
}

// Allocate applies credit against invoices. No journal entry is created
// here; the GL effect happened at open.
func (s *Service) Allocate(ctx context.Context, orgID, noteID, userID int64, allocs []AllocationInput) (CustomerCreditNote, error) {
	if len(allocs) == 0 {
		return CustomerCreditNote{}, fmt.Errorf("at least one allocation is required: %w", shared.ErrValidation)
	}
	var requested decimal.Decimal
	for i, alloc := range allocs {
		if alloc.InvoiceID == 0 {
			return CustomerCreditNote{}, fmt.Errorf("allocation %d: invoice is required: %w", i+1, shared.ErrValidation)
		}
		if !alloc.Amount.IsPositive() {
			return CustomerCreditNote{}, fmt.Errorf("allocation %d: amount must be positive: %w", i+1, shared.ErrValidation)
		}
		requested = requested.Add(alloc.Amount)
	}
	var note CustomerCreditNote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetCreditNoteForUpdate(ctx, orgID, noteID)
		if err != nil {
			return err
		}
		if current.Status != CreditNoteStatusOpen && current.Status != CreditNoteStatusPartiallyApplied {
			return fmt.Errorf("credit note %d is %s and cannot be allocated: %w", noteID, current.Status, shared.ErrInvalidState)
		}
		if requested.Sub(current.Remaining()).GreaterThan(shared.Tolerance) {
			return &shared.InsufficientBalanceError{Outstanding: current.Remaining(), Requested: requested}
		}
		for _, alloc := range allocs {
			invoice, err := tx.GetInvoiceForUpdate(ctx, orgID, alloc.InvoiceID)
			if err != nil {
				return err
			}
			if invoice.Status != InvoiceStatusOpen && invoice.Status != InvoiceStatusPartiallyPaid {
				return fmt.Errorf("invoice %d is %s and cannot accept credit: %w", invoice.ID, invoice.Status, shared.ErrInvalidState)
			}
			if alloc.Amount.Sub(invoice.Outstanding()).GreaterThan(shared.Tolerance) {
				return &shared.InsufficientBalanceError{Outstanding: invoice.Outstanding(), Requested: alloc.Amount}
			}
			invoice.PaidAmount = invoice.PaidAmount.Add(alloc.Amount)
			invoice.Status = deriveInvoiceStatus(invoice.PaidAmount, invoice.Total)
			if _, err := tx.UpdateInvoice(ctx, invoice); err != nil {
				return err
			}
			if _, err := tx.InsertAllocation(ctx, CreditAllocation{
				CreditNoteID: current.ID,
				InvoiceID:    invoice.ID,
				Amount:       alloc.Amount,
			}); err != nil {
				return err
			}
		}
		current.AllocatedAmount = current.AllocatedAmount.Add(requested)
		current.Status = deriveCreditNoteStatus(current.AllocatedAmount.Add(current.RefundedAmount), current.Amount)
		note, err = tx.UpdateCreditNote(ctx, current)
		return err
	})
	if err != nil {
		return CustomerCreditNote{}, err
	}
	s.recordAudit(ctx, orgID, userID, "ar.credit_note.allocate", note.ID, map[string]any{"amount": requested.StringFixed(2)})
	return note, nil
}

// DeleteAllocation unwinds one allocation without touching the GL.
func (s *Service) DeleteAllocation(ctx context.Context, orgID, allocationID, userID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		alloc, err := tx.GetAllocation(ctx, orgID, allocationID)
		if err != nil {
			return err
		}
		invoice, err := tx.GetInvoiceForUpdate(ctx, orgID, alloc.InvoiceID)
		if err != nil {
			return err
		}
		invoice.PaidAmount = invoice.PaidAmount.Sub(alloc.Amount)
		if invoice.PaidAmount.IsNegative() {
			invoice.PaidAmount = decimal.Zero
		}
		if invoice.Status != InvoiceStatusVoid {
			invoice.Status = deriveInvoiceStatus(invoice.PaidAmount, invoice.Total)
		}
		if _, err := tx.UpdateInvoice(ctx, invoice); err != nil {
			return err
		}
		note, err := tx.GetCreditNoteForUpdate(ctx, orgID, alloc.CreditNoteID)
		if err != nil {
			return err
		}
		note.AllocatedAmount = note.AllocatedAmount.Sub(alloc.Amount)
		if note.AllocatedAmount.IsNegative() {
			note.AllocatedAmount = decimal.Zero
		}
		note.Status = deriveCreditNoteStatus(note.AllocatedAmount.Add(note.RefundedAmount), note.Amount)
		if _, err := tx.UpdateCreditNote(ctx, note); err != nil {
			return err
		}
		return tx.DeleteAllocation(ctx, alloc.ID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, orgID, userID, "ar.credit_note.deallocate", allocationID, nil)
	return nil
}

// CreateCreditRefund pays remaining credit back to the customer: Debit AR
// control, Credit cash.
func (s *Service) CreateCreditRefund(ctx context.Context, orgID, noteID int64, amount decimal.Decimal, method mappings.PaymentMethod, userID int64) (CreditRefund, error) {
	if !amount.IsPositive() {
		return CreditRefund{}, fmt.Errorf("refund amount must be positive: %w", shared.ErrValidation)
	}
	arControlID, err := s.accounts.Resolve(ctx, orgID, mappings.KeyARControl)
	if err != nil {
		return CreditRefund{}, err
	}
	cashID, err := s.accounts.ResolveMethod(ctx, orgID, method)
	if err != nil {
		return CreditRefund{}, err
	}
	var refund CreditRefund
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		note, err := tx.GetCreditNoteForUpdate(ctx, orgID, noteID)
		if err != nil {
			return err
		}
		if note.Status != CreditNoteStatusOpen && note.Status != CreditNoteStatusPartiallyApplied {
			return fmt.Errorf("credit note %d is %s and cannot be refunded: %w", noteID, note.Status, shared.ErrInvalidState)
		}
		if amount.Sub(note.Remaining()).GreaterThan(shared.Tolerance) {
			return &shared.InsufficientBalanceError{Outstanding: note.Remaining(), Requested: amount}
		}
		inserted, err := tx.InsertCreditRefund(ctx, CreditRefund{
			CreditNoteID: note.ID,
			Amount:       amount,
			Method:       string(method),
		})
		if err != nil {
			return err
		}
		entry, err := s.ledger.PostDirect(ctx, journal.PostingInput{
			OrgID:    orgID,
			Date:     s.now(),
			Memo:     fmt.Sprintf("Customer credit refund %d", inserted.ID),
			Source:   journal.SourceCustomerCreditRefund,
			SourceID: strconv.FormatInt(inserted.ID, 10),
			Lines: []journal.LineInput{
				{AccountID: arControlID, Debit: amount},
				{AccountID: cashID, Credit: amount},
			},
			UserID: userID,
		})
		if err != nil {
			return err
		}
		if err := tx.LinkCreditRefundEntry(ctx, inserted.ID, entry.ID); err != nil {
			return err
		}
		inserted.JournalEntryID = entry.ID
		note.RefundedAmount = note.RefundedAmount.Add(amount)
		note.Status = deriveCreditNoteStatus(note.AllocatedAmount.Add(note.RefundedAmount), note.Amount)
		if _, err := tx.UpdateCreditNote(ctx, note); err != nil {
			return err
		}
		refund = inserted
		return nil
	})
	if err != nil {
		return CreditRefund{}, err
	}
	s.recordAudit(ctx, orgID, userID, "ar.credit_note.refund", refund.ID, map[string]any{"amount": amount.StringFixed(2)})
	return refund, nil
}

// VoidCreditNote cancels an unused credit note, reversing the opening entry
// when one exists.
func (s *Service) VoidCreditNote(ctx context.Context, orgID, noteID, userID int64) (CustomerCreditNote, error) {
	var note CustomerCreditNote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetCreditNoteForUpdate(ctx, orgID, noteID)
		if err != nil {
			return err
		}
		if current.Status == CreditNoteStatusVoid {
			return fmt.Errorf("credit note %d is already void: %w", noteID, shared.ErrInvalidState)
		}
		if current.AllocatedAmount.IsPositive() || current.RefundedAmount.IsPositive() {
			return fmt.Errorf("credit note %d has allocations or refunds and cannot be voided: %w", noteID, shared.ErrInvalidState)
		}
		if current.JournalEntryID != nil {
			if _, err := s.ledger.Reverse(ctx, journal.ReverseInput{
				OrgID:   orgID,
				EntryID: *current.JournalEntryID,
				UserID:  userID,
			}); err != nil {
				return err
			}
		}
		current.Status = CreditNoteStatusVoid
		note, err = tx.UpdateCreditNote(ctx, current)
		return err
	})
	if err != nil {
		return CustomerCreditNote{}, err
	}
	s.recordAudit(ctx, orgID, userID, "ar.credit_note.void", note.ID, nil)
	return note, nil
}
