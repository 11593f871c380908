package posting

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridianpos/meridian/internal/journal"
	"github.com/meridianpos/meridian/internal/mappings"
	"github.com/meridianpos/meridian/internal/shared"
)

type stubLedger struct {
	nextID   int64
	postings []journal.PostingInput
	bySource map[string]journal.JournalEntry
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
	entry := journal.JournalEntry{ID: l.nextID, OrgID: in.OrgID, Source: in.Source, SourceID: in.SourceID, Status: journal.EntryStatusPosted}
	l.bySource[key] = entry
	l.postings = append(l.postings, in)
	return entry, nil
}

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
	acctCash      = int64(101)
	acctBank      = int64(102)
	acctInventory = int64(130)
	acctRevenue   = int64(400)
	acctAdjust    = int64(410)
	acctCOGS      = int64(500)
	acctOverShort = int64(590)
)

func newTestService(t *testing.T) (*Service, *stubLedger) {
	t.Helper()
	ledger := &stubLedger{bySource: make(map[string]journal.JournalEntry)}
	resolver := &stubResolver{
		keys: map[string]int64{
			mappings.KeySalesRevenue:    acctRevenue,
			mappings.KeySalesAdjustment: acctAdjust,
			mappings.KeyCOGS:            acctCOGS,
			mappings.KeyInventory:       acctInventory,
			mappings.KeyCashDefault:     acctCash,
			mappings.KeyCashOverShort:   acctOverShort,
		},
		methods: map[mappings.PaymentMethod]int64{
			mappings.MethodCash:         acctCash,
			mappings.MethodBankTransfer: acctBank,
		},
	}
	return NewService(nil, ledger, resolver), ledger
}

func money(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSaleClosedPostsRevenue(t *testing.T) {
	svc, ledger := newTestService(t)
	orderID := uuid.New()

	entry, err := svc.SaleClosed(context.Background(), 1, SaleClosedEvent{
		OrderID:    orderID,
		OccurredAt: time.Now(),
		Gross:      money("4500"),
		Method:     mappings.MethodCash,
	}, 7)
	require.NoError(t, err)
	require.Equal(t, journal.SourceOrder, entry.Source)
	require.Equal(t, orderID.String(), entry.SourceID)

	posting := ledger.postings[0]
	require.Equal(t, acctCash, posting.Lines[0].AccountID)
	require.True(t, posting.Lines[0].Debit.Equal(money("4500")))
	require.Equal(t, acctRevenue, posting.Lines[1].AccountID)
	require.True(t, posting.Lines[1].Credit.Equal(money("4500")))

	// replaying the event stream books the sale once
	again, err := svc.SaleClosed(context.Background(), 1, SaleClosedEvent{
		OrderID:    orderID,
		OccurredAt: time.Now(),
		Gross:      money("4500"),
		Method:     mappings.MethodCash,
	}, 7)
	require.NoError(t, err)
	require.Equal(t, entry.ID, again.ID)
	require.Len(t, ledger.postings, 1)
}

func TestSaleClosedValidation(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SaleClosed(context.Background(), 1, SaleClosedEvent{
		OrderID: uuid.Nil,
		Gross:   money("100"),
		Method:  mappings.MethodCash,
	}, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.SaleClosed(context.Background(), 1, SaleClosedEvent{
		OrderID: uuid.New(),
		Gross:   money("0"),
		Method:  mappings.MethodCash,
	}, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.SaleClosed(context.Background(), 1, SaleClosedEvent{
		OrderID: uuid.New(),
		Gross:   money("100"),
		Method:  mappings.MethodCheque,
	}, 7)
	require.ErrorIs(t, err, shared.ErrMissingAccountMapping)
}

func TestCOGSRecognized(t *testing.T) {
	svc, ledger := newTestService(t)

	_, err := svc.COGSRecognized(context.Background(), 1, COGSEvent{
		OrderID:    uuid.New(),
		OccurredAt: time.Now(),
		Cost:       money("1800"),
	}, 7)
	require.NoError(t, err)

	posting := ledger.postings[0]
	require.Equal(t, journal.SourceCOGS, posting.Source)
	require.Equal(t, acctCOGS, posting.Lines[0].AccountID)
	require.True(t, posting.Lines[0].Debit.Equal(money("1800")))
	require.Equal(t, acctInventory, posting.Lines[1].AccountID)
	require.True(t, posting.Lines[1].Credit.Equal(money("1800")))
}

func TestRefundIssued(t *testing.T) {
	svc, ledger := newTestService(t)

	_, err := svc.RefundIssued(context.Background(), 1, RefundEvent{
		RefundID:   uuid.New(),
		OccurredAt: time.Now(),
		Amount:     money("600"),
		Method:     mappings.MethodCash,
	}, 7)
	require.NoError(t, err)

	posting := ledger.postings[0]
	require.Equal(t, journal.SourceRefund, posting.Source)
	require.Equal(t, acctAdjust, posting.Lines[0].AccountID)
	require.True(t, posting.Lines[0].Debit.Equal(money("600")))
	require.Equal(t, acctCash, posting.Lines[1].AccountID)
	require.True(t, posting.Lines[1].Credit.Equal(money("600")))
}

func TestCashMovements(t *testing.T) {
	svc, ledger := newTestService(t)

	cases := []struct {
		kind   CashMovementKind
		debit  int64
		credit int64
	}{
		{MovementSafeDrop, acctBank, acctCash},
		{MovementPickup, acctCash, acctBank},
		{MovementOver, acctCash, acctOverShort},
		{MovementShort, acctOverShort, acctCash},
	}
	for _, tc := range cases {
		_, err := svc.CashMovement(context.Background(), 1, CashMovementEvent{
			MovementID: uuid.New(),
			OccurredAt: time.Now(),
			Kind:       tc.kind,
			Amount:     money("2000"),
		}, 7)
		require.NoError(t, err, string(tc.kind))
		posting := ledger.postings[len(ledger.postings)-1]
		require.Equal(t, journal.SourceCashMovement, posting.Source)
		require.Equal(t, tc.debit, posting.Lines[0].AccountID, string(tc.kind))
		require.Equal(t, tc.credit, posting.Lines[1].AccountID, string(tc.kind))
	}

	_, err := svc.CashMovement(context.Background(), 1, CashMovementEvent{
		MovementID: uuid.New(),
		Kind:       "TRANSFER",
		Amount:     money("10"),
	}, 7)
	require.ErrorIs(t, err, shared.ErrValidation)
}
