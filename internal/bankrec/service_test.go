package bankrec

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridianpos/meridian/internal/shared"
)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type candidateRecord struct {
	Candidate
	Amount decimal.Decimal
	Date   time.Time
}

type memoryBankRepo struct {
	nextID     int64
	accounts   map[int64]BankAccount
	txns       map[int64]*BankTxn
	matches    []ReconcileMatch
	candidates []candidateRecord
}

func newMemoryBankRepo() *memoryBankRepo {
	return &memoryBankRepo{
		accounts: map[int64]BankAccount{},
		txns:     map[int64]*BankTxn{},
	}
}

func (m *memoryBankRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryBankRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryBankRepo) UpsertAccount(_ context.Context, a BankAccount) (BankAccount, error) {
	for _, existing := range m.accounts {
		if existing.OrgID == a.OrgID && existing.AccountNumber == a.AccountNumber {
			existing.Name = a.Name
			existing.Currency = a.Currency
			m.accounts[existing.ID] = existing
			return existing, nil
		}
	}
	a.ID = m.id()
	m.accounts[a.ID] = a
	return a, nil
}

func (m *memoryBankRepo) GetAccount(_ context.Context, orgID, accountID int64) (BankAccount, error) {
	a, ok := m.accounts[accountID]
	if !ok || a.OrgID != orgID {
		return BankAccount{}, fmt.Errorf("bank account: %w", shared.ErrNotFound)
	}
	return a, nil
}

func (m *memoryBankRepo) ListAccounts(_ context.Context, orgID int64) ([]BankAccount, error) {
	var out []BankAccount
	for _, a := range m.accounts {
		if a.OrgID == orgID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryBankRepo) InsertTxns(_ context.Context, accountID int64, rows []StatementRow) error {
	for _, row := range rows {
		id := m.id()
		m.txns[id] = &BankTxn{
			ID:            id,
			BankAccountID: accountID,
			Date:          row.Date,
			Amount:        row.Amount,
			Description:   row.Description,
			Ref:           row.Ref,
		}
	}
	return nil
}

func (m *memoryBankRepo) ListUnreconciled(_ context.Context, accountID int64) ([]BankTxn, error) {
	var out []BankTxn
	for _, t := range m.txns {
		if t.BankAccountID == accountID && !t.Reconciled {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memoryBankRepo) GetTxnForUpdate(_ context.Context, orgID, txnID int64) (BankTxn, error) {
	t, ok := m.txns[txnID]
	if !ok {
		return BankTxn{}, fmt.Errorf("bank transaction: %w", shared.ErrNotFound)
	}
	if account, ok := m.accounts[t.BankAccountID]; !ok || account.OrgID != orgID {
		return BankTxn{}, fmt.Errorf("bank transaction: %w", shared.ErrNotFound)
	}
	return *t, nil
}

func (m *memoryBankRepo) InsertMatch(_ context.Context, match ReconcileMatch) (ReconcileMatch, error) {
	match.ID = m.id()
	m.matches = append(m.matches, match)
	return match, nil
}

func (m *memoryBankRepo) MarkReconciled(_ context.Context, txnID int64) error {
	t := m.txns[txnID]
	if t.Reconciled {
		return fmt.Errorf("bank transaction %d: %w", txnID, shared.ErrAlreadyReconciled)
	}
	t.Reconciled = true
	return nil
}

func (m *memoryBankRepo) FindCandidate(_ context.Context, _ int64, amount decimal.Decimal, from, to time.Time) (Candidate, bool, error) {
	for _, c := range m.candidates {
		if !c.Amount.Equal(amount) || c.Date.Before(from) || c.Date.After(to) {
			continue
		}
		claimed := false
		for _, match := range m.matches {
			if match.Source == c.Source && match.SourceID == c.SourceID {
				claimed = true
				break
			}
		}
		if !claimed {
			return c.Candidate, true, nil
		}
	}
	return Candidate{}, false, nil
}

type countingMetrics struct {
	manual, auto int
}

func (m *countingMetrics) ObserveMatch(auto bool) {
	if auto {
		m.auto++
	} else {
		m.manual++
	}
}

func seedAccount(t *testing.T, svc *Service) BankAccount {
	t.Helper()
	account, err := svc.UpsertAccount(context.Background(), 1, AccountInput{
		Name:          "Operations",
		AccountNumber: "001-556677",
		Currency:      "GHS",
	})
	require.NoError(t, err)
	return account
}

func TestImportCSV(t *testing.T) {
	repo := newMemoryBankRepo()
	svc := NewService(nil, repo, nil)
	account := seedAccount(t, svc)

	imported, err := svc.ImportCSV(context.Background(), 1, account.ID, `Date,Amount,Description,Reference
2025-03-01,500.00,Settlement,S-1
2025-03-02,(120.00),Chargeback,S-2`)
	require.NoError(t, err)
	require.Equal(t, 2, imported)

	txns, err := svc.ListUnreconciled(context.Background(), 1, account.ID)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	for _, txn := range txns {
		require.False(t, txn.Reconciled)
	}
}

func TestImportCSVRejectsGarbage(t *testing.T) {
	repo := newMemoryBankRepo()
	svc := NewService(nil, repo, nil)
	account := seedAccount(t, svc)

	_, err := svc.ImportCSV(context.Background(), 1, account.ID, "Date,Amount")
	require.ErrorIs(t, err, shared.ErrInvalidFormat)
	require.Empty(t, repo.txns)
}

func TestMatchOncePerTransaction(t *testing.T) {
	repo := newMemoryBankRepo()
	metrics := &countingMetrics{}
	svc := NewService(nil, repo, metrics)
	account := seedAccount(t, svc)

	require.NoError(t, repo.InsertTxns(context.Background(), account.ID, []StatementRow{
		{Date: date("2025-03-01"), Amount: money("500.00"), Description: "Settlement"},
	}))
	var txnID int64
	for id := range repo.txns {
		txnID = id
	}

	match, err := svc.Match(context.Background(), 1, txnID, MatchSourcePayment, "42", 9)
	require.NoError(t, err)
	require.Equal(t, MatchSourcePayment, match.Source)
	require.Equal(t, "42", match.SourceID)
	require.Equal(t, int64(9), match.MatchedBy)
	require.True(t, repo.txns[txnID].Reconciled)
	require.Equal(t, 1, metrics.manual)

	_, err = svc.Match(context.Background(), 1, txnID, MatchSourceRefund, "43", 9)
	require.ErrorIs(t, err, shared.ErrAlreadyReconciled)
	require.Len(t, repo.matches, 1)
}

func TestMatchValidation(t *testing.T) {
	repo := newMemoryBankRepo()
	svc := NewService(nil, repo, nil)

	_, err := svc.Match(context.Background(), 1, 1, MatchSource("WIRE"), "42", 9)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Match(context.Background(), 1, 1, MatchSourcePayment, "", 9)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAutoMatch(t *testing.T) {
	repo := newMemoryBankRepo()
	metrics := &countingMetrics{}
	svc := NewService(nil, repo, metrics)
	account := seedAccount(t, svc)

	require.NoError(t, repo.InsertTxns(context.Background(), account.ID, []StatementRow{
		{Date: date("2025-03-10"), Amount: money("-500.00"), Description: "Supplier payout"},
		{Date: date("2025-03-11"), Amount: money("75.00"), Description: "Refund clawback"},
		{Date: date("2025-03-12"), Amount: money("999.00"), Description: "Unknown deposit"},
	}))
	repo.candidates = []candidateRecord{
		// two days off the payout row, inside the window
		{Candidate: Candidate{Source: MatchSourcePayment, SourceID: "7"}, Amount: money("500.00"), Date: date("2025-03-12")},
		{Candidate: Candidate{Source: MatchSourceRefund, SourceID: "8"}, Amount: money("75.00"), Date: date("2025-03-11")},
		// right amount but five days away
		{Candidate: Candidate{Source: MatchSourcePayment, SourceID: "9"}, Amount: money("999.00"), Date: date("2025-03-17")},
	}

	matched, err := svc.AutoMatch(context.Background(), 1, account.ID, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, matched)
	require.Equal(t, 2, metrics.auto)
	require.Len(t, repo.matches, 2)

	remaining, err := svc.ListUnreconciled(context.Background(), 1, account.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "Unknown deposit", remaining[0].Description)
}

func TestAutoMatchDoesNotReuseCandidates(t *testing.T) {
	repo := newMemoryBankRepo()
	svc := NewService(nil, repo, nil)
	account := seedAccount(t, svc)

	require.NoError(t, repo.InsertTxns(context.Background(), account.ID, []StatementRow{
		{Date: date("2025-03-10"), Amount: money("200.00")},
		{Date: date("2025-03-10"), Amount: money("200.00")},
	}))
	repo.candidates = []candidateRecord{
		{Candidate: Candidate{Source: MatchSourcePayment, SourceID: "7"}, Amount: money("200.00"), Date: date("2025-03-10")},
	}

	matched, err := svc.AutoMatch(context.Background(), 1, account.ID, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, matched)
	require.Len(t, repo.matches, 1)

	remaining, err := svc.ListUnreconciled(context.Background(), 1, account.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
}

func TestAutoMatchDateFilter(t *testing.T) {
	repo := newMemoryBankRepo()
	svc := NewService(nil, repo, nil)
	account := seedAccount(t, svc)

	require.NoError(t, repo.InsertTxns(context.Background(), account.ID, []StatementRow{
		{Date: date("2025-02-01"), Amount: money("300.00")},
		{Date: date("2025-03-15"), Amount: money("300.00")},
	}))
	repo.candidates = []candidateRecord{
		{Candidate: Candidate{Source: MatchSourcePayment, SourceID: "7"}, Amount: money("300.00"), Date: date("2025-02-01")},
		{Candidate: Candidate{Source: MatchSourcePayment, SourceID: "8"}, Amount: money("300.00"), Date: date("2025-03-15")},
	}

	from := date("2025-03-01")
	matched, err := svc.AutoMatch(context.Background(), 1, account.ID, &from, nil)
	require.NoError(t, err)
	require.Equal(t, 1, matched)
	require.Len(t, repo.matches, 1)
	require.Equal(t, "8", repo.matches[0].SourceID)
}
