package ap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridianpos/meridian/internal/journal"
	"github.com/meridianpos/meridian/internal/mappings"
	"github.com/meridianpos/meridian/internal/shared"
)

func seedOpenNote(t *testing.T, svc *Service, vendorID int64, amount string) VendorCreditNote {
	t.Helper()
	note, err := svc.CreateCreditNote(context.Background(), 1, vendorID, money(amount), 7)
	require.NoError(t, err)
	opened, err := svc.OpenCreditNote(context.Background(), 1, note.ID, 7)
	require.NoError(t, err)
	return opened
}

func TestCreditNoteOpenPostsAdjustment(t *testing.T) {
	svc, _, ledger := newTestService(t)
	vendor, err := svc.CreateVendor(context.Background(), 1, VendorInput{Name: "Highland Produce"})
	require.NoError(t, err)

	_, err = svc.CreateCreditNote(context.Background(), 1, vendor.ID, money("0"), 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	note := seedOpenNote(t, svc, vendor.ID, "20000")
	require.Equal(t, CreditNoteStatusOpen, note.Status)
	require.NotNil(t, note.JournalEntryID)

	require.Len(t, ledger.postings, 1)
	posting := ledger.postings[0]
	require.Equal(t, journal.SourceVendorCreditNote, posting.Source)
	require.Equal(t, acctAP, posting.Lines[0].AccountID)
	require.True(t, posting.Lines[0].Debit.Equal(money("20000")))
	require.Equal(t, acctExpense, posting.Lines[1].AccountID)
	require.True(t, posting.Lines[1].Credit.Equal(money("20000")))

	_, err = svc.OpenCreditNote(context.Background(), 1, note.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestAllocateCreditToBills(t *testing.T) {
	svc, repo, ledger := newTestService(t)
	bill := seedBill(t, svc, "50000")
	opened, err := svc.OpenBill(context.Background(), 1, bill.ID, 7)
	require.NoError(t, err)
	note := seedOpenNote(t, svc, opened.VendorID, "20000")
	posted := len(ledger.postings)

	note, err = svc.Allocate(context.Background(), 1, note.ID, 7, []AllocationInput{
		{BillID: bill.ID, Amount: money("15000")},
	})
	require.NoError(t, err)
	require.Equal(t, CreditNoteStatusPartiallyApplied, note.Status)
	require.True(t, note.AllocatedAmount.Equal(money("15000")))

	// allocation moves no GL lines
	require.Len(t, ledger.postings, posted)

	current, err := repo.GetBill(context.Background(), 1, bill.ID)
	require.NoError(t, err)
	require.Equal(t, BillStatusPartiallyPaid, current.Status)
	require.True(t, current.PaidAmount.Equal(money("15000")))

	// remaining credit is 5000, overdraw rejected
	_, err = svc.Allocate(context.Background(), 1, note.ID, 7, []AllocationInput{
		{BillID: bill.ID, Amount: money("5000.02")},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientBalance)

	note, err = svc.Allocate(context.Background(), 1, note.ID, 7, []AllocationInput{
		{BillID: bill.ID, Amount: money("5000")},
	})
	require.NoError(t, err)
	require.Equal(t, CreditNoteStatusApplied, note.Status)
}

func TestAllocateExceedingBillOutstanding(t *testing.T) {
	svc, _, _ := newTestService(t)
	bill := seedBill(t, svc, "1000")
	opened, err := svc.OpenBill(context.Background(), 1, bill.ID, 7)
	require.NoError(t, err)
	note := seedOpenNote(t, svc, opened.VendorID, "5000")

	_, err = svc.Allocate(context.Background(), 1, note.ID, 7, []AllocationInput{
		{BillID: bill.ID, Amount: money("1500")},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientBalance)
}

func TestDeleteAllocationRestoresBothSides(t *testing.T) {
	svc, repo, _ := newTestService(t)
	bill := seedBill(t, svc, "50000")
	opened, err := svc.OpenBill(context.Background(), 1, bill.ID, 7)
	require.NoError(t, err)
	note := seedOpenNote(t, svc, opened.VendorID, "20000")

	_, err = svc.Allocate(context.Background(), 1, note.ID, 7, []AllocationInput{
		{BillID: bill.ID, Amount: money("20000")},
	})
	require.NoError(t, err)

	var allocationID int64
	for id := range repo.allocations {
		allocationID = id
	}
	require.NoError(t, svc.DeleteAllocation(context.Background(), 1, allocationID, 7))

	current, err := repo.GetBill(context.Background(), 1, bill.ID)
	require.NoError(t, err)
	require.Equal(t, BillStatusOpen, current.Status)
	require.True(t, current.PaidAmount.IsZero())

	restored, err := svc.GetCreditNote(context.Background(), 1, note.ID)
	require.NoError(t, err)
	require.Equal(t, CreditNoteStatusOpen, restored.Status)
	require.True(t, restored.AllocatedAmount.IsZero())
	require.Empty(t, repo.allocations)
}

func TestCreditRefundPostsCashIn(t *testing.T) {
	svc, _, ledger := newTestService(t)
	vendor, err := svc.CreateVendor(context.Background(), 1, VendorInput{Name: "Highland Produce"})
	require.NoError(t, err)
	note := seedOpenNote(t, svc, vendor.ID, "8000")

	refund, err := svc.CreateCreditRefund(context.Background(), 1, note.ID, money("3000"), mappings.MethodBankTransfer, 7)
	require.NoError(t, err)
	require.NotZero(t, refund.JournalEntryID)

	posting := ledger.postings[len(ledger.postings)-1]
	require.Equal(t, journal.SourceVendorCreditRefund, posting.Source)
	require.Equal(t, acctCash, posting.Lines[0].AccountID)
	require.True(t, posting.Lines[0].Debit.Equal(money("3000")))
	require.Equal(t, acctAP, posting.Lines[1].AccountID)
	require.True(t, posting.Lines[1].Credit.Equal(money("3000")))

	updated, err := svc.GetCreditNote(context.Background(), 1, note.ID)
	require.NoError(t, err)
	require.Equal(t, CreditNoteStatusPartiallyApplied, updated.Status)
	require.True(t, updated.RefundedAmount.Equal(money("3000")))

	// remaining 5000
	_, err = svc.CreateCreditRefund(context.Background(), 1, note.ID, money("5000.02"), mappings.MethodCash, 7)
	require.ErrorIs(t, err, shared.ErrInsufficientBalance)

	_, err = svc.CreateCreditRefund(context.Background(), 1, note.ID, money("5000"), mappings.MethodCash, 7)
	require.NoError(t, err)
	updated, err = svc.GetCreditNote(context.Background(), 1, note.ID)
	require.NoError(t, err)
	require.Equal(t, CreditNoteStatusApplied, updated.Status)
}

func TestVoidCreditNote(t *testing.T) {
	svc, _, ledger := newTestService(t)
	vendor, err := svc.CreateVendor(context.Background(), 1, VendorInput{Name: "Highland Produce"})
	require.NoError(t, err)
	note := seedOpenNote(t, svc, vendor.ID, "8000")

	voided, err := svc.VoidCreditNote(context.Background(), 1, note.ID, 7)
	require.NoError(t, err)
	require.Equal(t, CreditNoteStatusVoid, voided.Status)
	require.Equal(t, []int64{*note.JournalEntryID}, ledger.reversed)

	_, err = svc.VoidCreditNote(context.Background(), 1, note.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestVoidUsedCreditNoteRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	bill := seedBill(t, svc, "50000")
	opened, err := svc.OpenBill(context.Background(), 1, bill.ID, 7)
	require.NoError(t, err)
	note := seedOpenNote(t, svc, opened.VendorID, "20000")

	_, err = svc.Allocate(context.Background(), 1, note.ID, 7, []AllocationInput{
		{BillID: bill.ID, Amount: money("1000")},
	})
	require.NoError(t, err)

	_, err = svc.VoidCreditNote(context.Background(), 1, note.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}
