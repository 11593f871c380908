package ap

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridianpos/meridian/internal/journal"
	"github.com/meridianpos/meridian/internal/mappings"
	"github.com/meridianpos/meridian/internal/shared"
)

type memoryAPRepo struct {
	vendors     map[int64]Vendor
	bills       map[int64]VendorBill
	payments    map[int64]VendorPayment
	notes       map[int64]VendorCreditNote
	allocations map[int64]CreditAllocation
	refunds     map[int64]CreditRefund
	nextID      int64
}

func newMemoryAPRepo() *memoryAPRepo {
	return &memoryAPRepo{
		vendors:     make(map[int64]Vendor),
		bills:       make(map[int64]VendorBill),
		payments:    make(map[int64]VendorPayment),
		notes:       make(map[int64]VendorCreditNote),
		allocations: make(map[int64]CreditAllocation),
		refunds:     make(map[int64]CreditRefund),
	}
}

func (r *memoryAPRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryAPRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryAPRepo) InsertVendor(ctx context.Context, v Vendor) (Vendor, error) {
	v.ID = r.id()
	r.vendors[v.ID] = v
	return v, nil
}

func (r *memoryAPRepo) GetVendor(ctx context.Context, orgID, vendorID int64) (Vendor, error) {
	v, ok := r.vendors[vendorID]
	if !ok || v.OrgID != orgID {
		return Vendor{}, fmt.Errorf("vendor: %w", shared.ErrNotFound)
	}
	return v, nil
}

func (r *memoryAPRepo) UpdateVendor(ctx context.Context, v Vendor) (Vendor, error) {
	r.vendors[v.ID] = v
	return v, nil
}

func (r *memoryAPRepo) ListVendors(ctx context.Context, orgID int64, search string, page, perPage int) ([]Vendor, shared.Pagination, error) {
	var out []Vendor
	for _, v := range r.vendors {
		if v.OrgID == orgID {
			out = append(out, v)
		}
	}
	return out, shared.NewPagination(page, perPage, len(out)), nil
}

func (r *memoryAPRepo) InsertBill(ctx context.Context, b VendorBill) (VendorBill, error) {
	b.ID = r.id()
	b.PaidAmount = decimal.Zero
	r.bills[b.ID] = b
	return b, nil
}

func (r *memoryAPRepo) GetBill(ctx context.Context, orgID, billID int64) (VendorBill, error) {
	b, ok := r.bills[billID]
	if !ok || b.OrgID != orgID {
		return VendorBill{}, fmt.Errorf("vendor bill: %w", shared.ErrNotFound)
	}
	return b, nil
}

func (r *memoryAPRepo) ListBills(ctx context.Context, orgID int64, filter BillFilter) ([]VendorBill, shared.Pagination, error) {
	var out []VendorBill
	for _, b := range r.bills {
		if b.OrgID != orgID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		out = append(out, b)
	}
	return out, shared.NewPagination(filter.Page, filter.PerPage, len(out)), nil
}

func (r *memoryAPRepo) ListOutstandingBills(ctx context.Context, orgID int64) ([]VendorBill, error) {
	var out []VendorBill
	for _, b := range r.bills {
		if b.OrgID == orgID && (b.Status == BillStatusOpen || b.Status == BillStatusPartiallyPaid) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memoryAPRepo) ListPayments(ctx context.Context, orgID, vendorID int64, page, perPage int) ([]VendorPayment, shared.Pagination, error) {
	var out []VendorPayment
	for _, p := range r.payments {
		if p.OrgID == orgID && (vendorID == 0 || p.VendorID == vendorID) {
			out = append(out, p)
		}
	}
	return out, shared.NewPagination(page, perPage, len(out)), nil
}

func (r *memoryAPRepo) InsertCreditNote(ctx context.Context, n VendorCreditNote) (VendorCreditNote, error) {
	n.ID = r.id()
	n.AllocatedAmount = decimal.Zero
	n.RefundedAmount = decimal.Zero
	r.notes[n.ID] = n
	return n, nil
}

func (r *memoryAPRepo) GetCreditNote(ctx context.Context, orgID, noteID int64) (VendorCreditNote, error) {
	n, ok := r.notes[noteID]
	if !ok || n.OrgID != orgID {
		return VendorCreditNote{}, fmt.Errorf("vendor credit note: %w", shared.ErrNotFound)
	}
	return n, nil
}

func (r *memoryAPRepo) ListCreditNotes(ctx context.Context, orgID, vendorID int64, page, perPage int) ([]VendorCreditNote, shared.Pagination, error) {
	var out []VendorCreditNote
	for _, n := range r.notes {
		if n.OrgID == orgID && (vendorID == 0 || n.VendorID == vendorID) {
			out = append(out, n)
		}
	}
	return out, shared.NewPagination(page, perPage, len(out)), nil
}

func (r *memoryAPRepo) GetBillForUpdate(ctx context.Context, orgID, billID int64) (VendorBill, error) {
	return r.GetBill(ctx, orgID, billID)
}

func (r *memoryAPRepo) UpdateBill(ctx context.Context, b VendorBill) (VendorBill, error) {
	r.bills[b.ID] = b
	return b, nil
}

func (r *memoryAPRepo) InsertPayment(ctx context.Context, p VendorPayment) (VendorPayment, error) {
	p.ID = r.id()
	r.payments[p.ID] = p
	return p, nil
}

func (r *memoryAPRepo) LinkPaymentEntry(ctx context.Context, paymentID, entryID int64) error {
	p := r.payments[paymentID]
	p.JournalEntryID = entryID
	r.payments[paymentID] = p
	return nil
}

func (r *memoryAPRepo) GetCreditNoteForUpdate(ctx context.Context, orgID, noteID int64) (VendorCreditNote, error) {
	return r.GetCreditNote(ctx, orgID, noteID)
}

func (r *memoryAPRepo) UpdateCreditNote(ctx context.Context, n VendorCreditNote) (VendorCreditNote, error) {
	r.notes[n.ID] = n
	return n, nil
}

func (r *memoryAPRepo) InsertAllocation(ctx context.Context, a CreditAllocation) (CreditAllocation, error) {
	a.ID = r.id()
	r.allocations[a.ID] = a
	return a, nil
}

func (r *memoryAPRepo) GetAllocation(ctx context.Context, orgID, allocationID int64) (CreditAllocation, error) {
	a, ok := r.allocations[allocationID]
	if !ok {
		return CreditAllocation{}, fmt.Errorf("credit allocation: %w", shared.ErrNotFound)
	}
	if n, exists := r.notes[a.CreditNoteID]; !exists || n.OrgID != orgID {
		return CreditAllocation{}, fmt.Errorf("credit allocation: %w", shared.ErrNotFound)
	}
	return a, nil
}

func (r *memoryAPRepo) DeleteAllocation(ctx context.Context, allocationID int64) error {
	if _, ok := r.allocations[allocationID]; !ok {
		return fmt.Errorf("credit allocation %d: %w", allocationID, shared.ErrNotFound)
	}
	delete(r.allocations, allocationID)
	return nil
}

func (r *memoryAPRepo) InsertCreditRefund(ctx context.Context, ref CreditRefund) (CreditRefund, error) {
	ref.ID = r.id()
	r.refunds[ref.ID] = ref
	return ref, nil
}

func (r *memoryAPRepo) LinkCreditRefundEntry(ctx context.Context, refundID, entryID int64) error {
	ref := r.refunds[refundID]
	ref.JournalEntryID = entryID
	r.refunds[refundID] = ref
	return nil
}

// stubLedger records postings and honors the (source, sourceId) guard the
// real journal service provides.
type stubLedger struct {
	nextID   int64
	postings []journal.PostingInput
	bySource map[string]journal.JournalEntry
	reversed []int64
}

func newStubLedger() *stubLedger {
	return &stubLedger{bySource: make(map[string]journal.JournalEntry)}
}

func (l *stubLedger) PostDirect(ctx context.Context, in journal.PostingInput) (journal.JournalEntry, error) {
	if err := journal.ValidateLines(in.Lines); err != nil {
		return journal.JournalEntry{}, err
	}
	key := string(in.Source) + ":" + in.SourceID
	if entry, ok := l.bySource[key]; ok {
		return entry, nil
	}
	l.nextID++
	entry := journal.JournalEntry{
		ID:       l.nextID,
		OrgID:    in.OrgID,
		Date:     in.Date,
		Source:   in.Source,
		SourceID: in.SourceID,
		Status:   journal.EntryStatusPosted,
	}
	l.bySource[key] = entry
	l.postings = append(l.postings, in)
	return entry, nil
}

func (l *stubLedger) Reverse(ctx context.Context, in journal.ReverseInput) (journal.JournalEntry, error) {
	l.reversed = append(l.reversed, in.EntryID)
	l.nextID++
	return journal.JournalEntry{ID: l.nextID, Source: journal.SourceReversal, Status: journal.EntryStatusPosted}, nil
}

// stubResolver maps keys and methods to fixed accounts.
type stubResolver struct {
	keys    map[string]int64
	methods map[mappings.PaymentMethod]int64
}

func (r *stubResolver) Resolve(ctx context.Context, orgID int64, key string) (int64, error) {
	if id, ok := r.keys[key]; ok {
		return id, nil
	}
	return 0, &shared.MissingAccountMappingError{OrgID: orgID, Key: key}
}

func (r *stubResolver) ResolveMethod(ctx context.Context, orgID int64, method mappings.PaymentMethod) (int64, error) {
	if id, ok := r.methods[method]; ok {
		return id, nil
	}
	return 0, &shared.MissingAccountMappingError{OrgID: orgID, Key: string(method)}
}

const (
	acctExpense = int64(501)
	acctAP      = int64(201)
	acctCash    = int64(101)
)

func newTestService(t *testing.T) (*Service, *memoryAPRepo, *stubLedger) {
	t.Helper()
	repo := newMemoryAPRepo()
	ledger := newStubLedger()
	resolver := &stubResolver{
		keys: map[string]int64{
			mappings.KeyPurchaseExpense: acctExpense,
			mappings.KeyAPControl:       acctAP,
		},
		methods: map[mappings.PaymentMethod]int64{
			mappings.MethodCash:         acctCash,
			mappings.MethodBankTransfer: acctCash,
		},
	}
	return NewService(nil, repo, ledger, resolver, nil), repo, ledger
}

func money(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func seedBill(t *testing.T, svc *Service, total string) VendorBill {
	t.Helper()
	vendor, err := svc.CreateVendor(context.Background(), 1, VendorInput{Name: "Highland Produce"})
	require.NoError(t, err)
	bill, err := svc.CreateBill(context.Background(), 1, BillInput{
		VendorID: vendor.ID,
		Number:   "INV-1001",
		BillDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		DueDate:  time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		Subtotal: money(total),
	})
	require.NoError(t, err)
	return bill
}

func TestCreateBillValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	vendor, err := svc.CreateVendor(context.Background(), 1, VendorInput{Name: "Highland Produce"})
	require.NoError(t, err)

	_, err = svc.CreateBill(context.Background(), 1, BillInput{
		VendorID: vendor.ID,
		BillDate: time.Now(),
		DueDate:  time.Now(),
		Subtotal: money("-10"),
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateBill(context.Background(), 1, BillInput{
		VendorID: vendor.ID,
		BillDate: time.Now(),
		DueDate:  time.Now(),
		Subtotal: money("0"),
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateBill(context.Background(), 1, BillInput{
		VendorID: 999,
		BillDate: time.Now(),
		DueDate:  time.Now(),
		Subtotal: money("50"),
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOpenBillPostsLiability(t *testing.T) {
	svc, _, ledger := newTestService(t)
	bill := seedBill(t, svc, "100000")

	opened, err := svc.OpenBill(context.Background(), 1, bill.ID, 7)
	require.NoError(t, err)
	require.Equal(t, BillStatusOpen, opened.Status)
	require.NotNil(t, opened.JournalEntryID)
	require.NotNil(t, opened.OpenedBy)

	require.Len(t, ledger.postings, 1)
	posting := ledger.postings[0]
	require.Equal(t, journal.SourceVendorBill, posting.Source)
	require.Len(t, posting.Lines, 2)
	require.Equal(t, acctExpense, posting.Lines[0].AccountID)
	require.True(t, posting.Lines[0].Debit.Equal(money("100000")))
	require.Equal(t, acctAP, posting.Lines[1].AccountID)
	require.True(t, posting.Lines[1].Credit.Equal(money("100000")))

	_, err = svc.OpenBill(context.Background(), 1, bill.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestPaymentLifecycle(t *testing.T) {
	svc, repo, ledger := newTestService(t)
	bill := seedBill(t, svc, "100000")
	opened, err := svc.OpenBill(context.Background(), 1, bill.ID, 7)
	require.NoError(t, err)

	first, err := svc.CreatePayment(context.Background(), 1, PaymentInput{
		VendorID: opened.VendorID,
		BillID:   &opened.ID,
		Amount:   money("60000"),
		Method:   mappings.MethodBankTransfer,
	}, 7)
	require.NoError(t, err)
	require.NotZero(t, first.JournalEntryID)

	current, err := repo.GetBill(context.Background(), 1, bill.ID)
	require.NoError(t, err)
	require.Equal(t, BillStatusPartiallyPaid, current.Status)
	require.True(t, current.PaidAmount.Equal(money("60000")))

	_, err = svc.CreatePayment(context.Background(), 1, PaymentInput{
		VendorID: opened.VendorID,
		BillID:   &opened.ID,
		Amount:   money("40000"),
		Method:   mappings.MethodBankTransfer,
	}, 7)
	require.NoError(t, err)

	current, err = repo.GetBill(context.Background(), 1, bill.ID)
	require.NoError(t, err)
	require.Equal(t, BillStatusPaid, current.Status)
	require.True(t, current.PaidAmount.Equal(money("100000")))

	// open + two payments
	require.Len(t, ledger.postings, 3)
	payment := ledger.postings[1]
	require.Equal(t, journal.SourceVendorPayment, payment.Source)
	require.Equal(t, acctAP, payment.Lines[0].AccountID)
	require.True(t, payment.Lines[0].Debit.Equal(money("60000")))
	require.Equal(t, acctCash, payment.Lines[1].AccountID)
	require.True(t, payment.Lines[1].Credit.Equal(money("60000")))

	_, err = svc.CreatePayment(context.Background(), 1, PaymentInput{
		VendorID: opened.VendorID,
		BillID:   &opened.ID,
		Amount:   money("1"),
		Method:   mappings.MethodCash,
	}, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestPaymentOverpayRejected(t *testing.T) {
	svc, repo, _ := newTestService(t)
	bill := seedBill(t, svc, "500")
	opened, err := svc.OpenBill(context.Background(), 1, bill.ID, 7)
	require.NoError(t, err)

	_, err = svc.CreatePayment(context.Background(), 1, PaymentInput{
		VendorID: opened.VendorID,
		BillID:   &opened.ID,
		Amount:   money("500.02"),
		Method:   mappings.MethodCash,
	}, 7)
	require.ErrorIs(t, err, shared.ErrInsufficientBalance)
	var insufficient *shared.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Outstanding.Equal(money("500")))

	// nothing applied
	current, err := repo.GetBill(context.Background(), 1, bill.ID)
	require.NoError(t, err)
	require.True(t, current.PaidAmount.IsZero())

	// within tolerance settles in full
	_, err = svc.CreatePayment(context.Background(), 1, PaymentInput{
		VendorID: opened.VendorID,
		BillID:   &opened.ID,
		Amount:   money("500.01"),
		Method:   mappings.MethodCash,
	}, 7)
	require.NoError(t, err)
	current, err = repo.GetBill(context.Background(), 1, bill.ID)
	require.NoError(t, err)
	require.Equal(t, BillStatusPaid, current.Status)
}

func TestPaymentValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreatePayment(context.Background(), 1, PaymentInput{
		VendorID: 1,
		Amount:   money("0"),
		Method:   mappings.MethodCash,
	}, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreatePayment(context.Background(), 1, PaymentInput{
		VendorID: 1,
		Amount:   money("10"),
		Method:   mappings.MethodCheque,
	}, 7)
	require.ErrorIs(t, err, shared.ErrMissingAccountMapping)
}

func TestVoidBillReversesOpeningEntry(t *testing.T) {
	svc, repo, ledger := newTestService(t)
	bill := seedBill(t, svc, "100000")
	opened, err := svc.OpenBill(context.Background(), 1, bill.ID, 7)
	require.NoError(t, err)

	_, err = svc.CreatePayment(context.Background(), 1, PaymentInput{
		VendorID: opened.VendorID,
		BillID:   &opened.ID,
		Amount:   money("60000"),
		Method:   mappings.MethodCash,
	}, 7)
	require.NoError(t, err)

	voided, err := svc.VoidBill(context.Background(), 1, bill.ID, 7)
	require.NoError(t, err)
	require.Equal(t, BillStatusVoid, voided.Status)
	require.Equal(t, []int64{*opened.JournalEntryID}, ledger.reversed)

	// void is terminal
	_, err = svc.VoidBill(context.Background(), 1, bill.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	_, err = svc.CreatePayment(context.Background(), 1, PaymentInput{
		VendorID: opened.VendorID,
		BillID:   &opened.ID,
		Amount:   money("1000"),
		Method:   mappings.MethodCash,
	}, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	current, err := repo.GetBill(context.Background(), 1, bill.ID)
	require.NoError(t, err)
	require.Equal(t, BillStatusVoid, current.Status)
}

func TestVoidDraftBillRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	bill := seedBill(t, svc, "100")
	_, err := svc.VoidBill(context.Background(), 1, bill.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestAgingBuckets(t *testing.T) {
	svc, repo, _ := newTestService(t)
	asOf := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	vendor, err := svc.CreateVendor(context.Background(), 1, VendorInput{Name: "Highland Produce"})
	require.NoError(t, err)

	due := func(daysAgo int) time.Time { return asOf.AddDate(0, 0, -daysAgo) }
	mkBill := func(dueDate time.Time, total, paid string) {
		bill, err := repo.InsertBill(context.Background(), VendorBill{
			OrgID:    1,
			VendorID: vendor.ID,
			BillDate: dueDate.AddDate(0, 0, -30),
			DueDate:  dueDate,
			Total:    money(total),
			Status:   BillStatusOpen,
		})
		require.NoError(t, err)
		bill.PaidAmount = money(paid)
		bill.Status = deriveBillStatus(bill.PaidAmount, bill.Total)
		_, err = repo.UpdateBill(context.Background(), bill)
		require.NoError(t, err)
	}

	mkBill(due(-10), "1000", "0")   // not yet due, first bucket
	mkBill(due(45), "30000", "0")   // 31-60
	mkBill(due(75), "5000", "2000") // 61-90, outstanding 3000
	mkBill(due(120), "700", "0")    // 90+
	mkBill(due(45), "800", "800")   // PAID, excluded

	aging, err := svc.Aging(context.Background(), 1, asOf)
	require.NoError(t, err)
	require.True(t, aging.Days0To30.Equal(money("1000")))
	require.True(t, aging.Days31To60.Equal(money("30000")))
	require.True(t, aging.Days61To90.Equal(money("3000")))
	require.True(t, aging.Days90Plus.Equal(money("700")))
	require.True(t, aging.Total.Equal(money("34700")))
}
