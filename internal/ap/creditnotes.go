package ap

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/meridianpos/meridian/internal/journal"
	"github.com/meridianpos/meridian/internal/mappings"
	"github.com/meridianpos/meridian/internal/shared"
)

// AllocationInput applies part of a credit note to one bill.
type AllocationInput struct {
	BillID int64
	Amount decimal.Decimal
}

// CreateCreditNote records a DRAFT vendor credit note.
func (s *Service) CreateCreditNote(ctx context.Context, orgID, vendorID int64, amount decimal.Decimal, userID int64) (VendorCreditNote, error) {
	if !amount.IsPositive() {
		return VendorCreditNote{}, fmt.Errorf("credit note amount must be positive: %w", shared.ErrValidation)
	}
	if _, err := s.repo.GetVendor(ctx, orgID, vendorID); err != nil {
		return VendorCreditNote{}, err
	}
	return s.repo.InsertCreditNote(ctx, VendorCreditNote{
		OrgID:     orgID,
		VendorID:  vendorID,
		Amount:    amount,
		Status:    CreditNoteStatusDraft,
		CreatedBy: userID,
	})
}

func (s *Service) GetCreditNote(ctx context.Context, orgID, noteID int64) (VendorCreditNote, error) {
	return s.repo.GetCreditNote(ctx, orgID, noteID)
}

func (s *Service) ListCreditNotes(ctx context.Context, orgID, vendorID int64, page, perPage int) ([]VendorCreditNote, shared.Pagination, error) {
	return s.repo.ListCreditNotes(ctx, orgID, vendorID, page, perPage)
}

// OpenCreditNote posts the payable reduction (Debit AP control, Credit
// expense) and flips the note DRAFT -> OPEN. Allocation and refund later
// consume the credit without further expense-side postings.
func (s *Service) OpenCreditNote(ctx context.Context, orgID, noteID, userID int64) (VendorCreditNote, error) {
	apControlID, err := s.accounts.Resolve(ctx, orgID, mappings.KeyAPControl)
	if err != nil {
		return VendorCreditNote{}, err
	}
	expenseID, err := s.accounts.Resolve(ctx, orgID, mappings.KeyPurchaseExpense)
	if err != nil {
		return VendorCreditNote{}, err
	}
	var note VendorCreditNote
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
			Memo:     fmt.Sprintf("Vendor credit note %d", current.ID),
			Source:   journal.SourceVendorCreditNote,
			SourceID: strconv.FormatInt(current.ID, 10),
			Lines: []journal.LineInput{
				{AccountID: apControlID, Debit: current.Amount},
				{AccountID: expenseID, Credit: current.Amount},
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
		return VendorCreditNote{}, err
	}
	s.recordAudit(ctx, orgID, userID, "ap.credit_note.open", note.ID, map[string]any{"amount": note.Amount.StringFixed(2)})
	return note, nil
}

// Allocate applies credit against bills. No journal entry is created here:
// the GL effect happened at open, allocation only redistributes which bill
// the posted adjustment offsets. Targets and the note update atomically.
func (s *Service) Allocate(ctx context.Context, orgID, noteID, userID int64, allocs []AllocationInput) (VendorCreditNote, error) {
	if len(allocs) == 0 {
		return VendorCreditNote{}, fmt.Errorf("at least one allocation is required: %w", shared.ErrValidation)
	}
	var requested decimal.Decimal
	for i, alloc := range allocs {
		if alloc.BillID == 0 {
			return VendorCreditNote{}, fmt.Errorf("allocation %d: bill is required: %w", i+1, shared.ErrValidation)
		}
		if !alloc.Amount.IsPositive() {
			return VendorCreditNote{}, fmt.Errorf("allocation %d: amount must be positive: %w", i+1, shared.ErrValidation)
		}
		requested = requested.Add(alloc.Amount)
	}
	var note VendorCreditNote
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
			bill, err := tx.GetBillForUpdate(ctx, orgID, alloc.BillID)
			if err != nil {
				return err
			}
			if bill.Status != BillStatusOpen && bill.Status != BillStatusPartiallyPaid {
				return fmt.Errorf("bill %d is %s and cannot accept credit: %w", bill.ID, bill.Status, shared.ErrInvalidState)
			}
			if alloc.Amount.Sub(bill.Outstanding()).GreaterThan(shared.Tolerance) {
				return &shared.InsufficientBalanceError{Outstanding: bill.Outstanding(), Requested: alloc.Amount}
			}
			bill.PaidAmount = bill.PaidAmount.Add(alloc.Amount)
			bill.Status = deriveBillStatus(bill.PaidAmount, bill.Total)
			if _, err := tx.UpdateBill(ctx, bill); err != nil {
				return err
			}
			if _, err := tx.InsertAllocation(ctx, CreditAllocation{
				CreditNoteID: current.ID,
				BillID:       bill.ID,
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
		return VendorCreditNote{}, err
	}
	s.recordAudit(ctx, orgID, userID, "ap.credit_note.allocate", note.ID, map[string]any{"amount": requested.StringFixed(2)})
	return note, nil
}

// DeleteAllocation unwinds one allocation: the bill's paidAmount drops
// (floored at zero) and the note regains the credit. No journal reversal,
// consistent with allocation never having created lines.
func (s *Service) DeleteAllocation(ctx context.Context, orgID, allocationID, userID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		alloc, err := tx.GetAllocation(ctx, orgID, allocationID)
		if err != nil {
			return err
		}
		bill, err := tx.GetBillForUpdate(ctx, orgID, alloc.BillID)
		if err != nil {
			return err
		}
		bill.PaidAmount = bill.PaidAmount.Sub(alloc.Amount)
		if bill.PaidAmount.IsNegative() {
			bill.PaidAmount = decimal.Zero
		}
		if bill.Status != BillStatusVoid {
			bill.Status = deriveBillStatus(bill.PaidAmount, bill.Total)
		}
		if _, err := tx.UpdateBill(ctx, bill); err != nil {
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
	s.recordAudit(ctx, orgID, userID, "ap.credit_note.deallocate", allocationID, nil)
	return nil
}

// CreateCreditRefund cashes in remaining credit from the vendor: Debit cash,
// Credit AP control.
func (s *Service) CreateCreditRefund(ctx context.Context, orgID, noteID int64, amount decimal.Decimal, method mappings.PaymentMethod, userID int64) (CreditRefund, error) {
	if !amount.IsPositive() {
		return CreditRefund{}, fmt.Errorf("refund amount must be positive: %w", shared.ErrValidation)
	}
	apControlID, err := s.accounts.Resolve(ctx, orgID, mappings.KeyAPControl)
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
			Memo:     fmt.Sprintf("Vendor credit refund %d", inserted.ID),
			Source:   journal.SourceVendorCreditRefund,
			SourceID: strconv.FormatInt(inserted.ID, 10),
			Lines: []journal.LineInput{
				{AccountID: cashID, Debit: amount},
				{AccountID: apControlID, Credit: amount},
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
	s.recordAudit(ctx, orgID, userID, "ap.credit_note.refund", refund.ID, map[string]any{"amount": amount.StringFixed(2)})
	return refund, nil
}

// VoidCreditNote cancels an unused credit note, reversing the opening entry
// when one exists. Notes with any allocation or refund cannot be voided.
func (s *Service) VoidCreditNote(ctx context.Context, orgID, noteID, userID int64) (VendorCreditNote, error) {
	var note VendorCreditNote
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
		return VendorCreditNote{}, err
	}
	s.recordAudit(ctx, orgID, userID, "ap.credit_note.void", note.ID, nil)
	return note, nil
}
