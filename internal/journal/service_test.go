package journal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridianpos/meridian/internal/shared"
)

type memoryJournalRepo struct {
	entries  map[int64]JournalEntry
	lines    map[int64][]JournalLine
	accounts map[int64]int64 // accountID -> orgID
	nextID   int64
	nextLine int64
}

func newMemoryJournalRepo(accountIDs ...int64) *memoryJournalRepo {
	repo := &memoryJournalRepo{
		entries:  make(map[int64]JournalEntry),
		lines:    make(map[int64][]JournalLine),
		accounts: make(map[int64]int64),
	}
	for _, id := range accountIDs {
		repo.accounts[id] = 1
	}
	return repo
}

func (r *memoryJournalRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryJournalRepo) GetEntry(ctx context.Context, orgID, entryID int64) (JournalEntry, error) {
	entry, ok := r.entries[entryID]
	if !ok || entry.OrgID != orgID {
		return JournalEntry{}, fmt.Errorf("journal entry: %w", shared.ErrNotFound)
	}
	entry.Lines = append([]JournalLine(nil), r.lines[entryID]...)
	return entry, nil
}

func (r *memoryJournalRepo) FindBySource(ctx context.Context, orgID int64, source Source, sourceID string) (JournalEntry, error) {
	for _, entry := range r.entries {
		if entry.OrgID == orgID && entry.Source == source && entry.SourceID == sourceID {
			return entry, nil
		}
	}
	return JournalEntry{}, fmt.Errorf("journal entry: %w", shared.ErrNotFound)
}

func (r *memoryJournalRepo) List(ctx context.Context, orgID int64, filter ListFilter) ([]JournalEntry, shared.Pagination, error) {
	var out []JournalEntry
	for id, entry := range r.entries {
		if entry.OrgID != orgID {
			continue
		}
		if filter.Source != "" && entry.Source != filter.Source {
			continue
		}
		if filter.Status != "" && entry.Status != filter.Status {
			continue
		}
		entry.Lines = r.lines[id]
		out = append(out, entry)
	}
	return out, shared.NewPagination(filter.Page, filter.PerPage, len(out)), nil
}

func (r *memoryJournalRepo) InsertEntry(ctx context.Context, in insertEntry) (JournalEntry, error) {
	r.nextID++
	entry := JournalEntry{
		ID:              r.nextID,
		OrgID:           in.OrgID,
		BranchID:        in.BranchID,
		Date:            in.Date,
		Memo:            in.Memo,
		Source:          in.Source,
		SourceID:        in.SourceID,
		Status:          in.Status,
		PostedBy:        in.PostedBy,
		PostedAt:        in.PostedAt,
		ReversesEntryID: in.ReversesEntryID,
	}
	r.entries[entry.ID] = entry
	return entry, nil
}

func (r *memoryJournalRepo) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	for _, line := range lines {
		r.nextLine++
		r.lines[entryID] = append(r.lines[entryID], JournalLine{
			ID:        r.nextLine,
			EntryID:   entryID,
			AccountID: line.AccountID,
			BranchID:  line.BranchID,
			Debit:     line.Debit,
			Credit:    line.Credit,
		})
	}
	return nil
}

func (r *memoryJournalRepo) GetEntryForUpdate(ctx context.Context, orgID, entryID int64) (JournalEntry, error) {
	return r.GetEntry(ctx, orgID, entryID)
}

func (r *memoryJournalRepo) GetLines(ctx context.Context, entryID int64) ([]JournalLine, error) {
	return r.lines[entryID], nil
}

func (r *memoryJournalRepo) MarkPosted(ctx context.Context, entryID, userID int64, at time.Time) (JournalEntry, error) {
	entry := r.entries[entryID]
	entry.Status = EntryStatusPosted
	entry.PostedBy = &userID
	entry.PostedAt = &at
	r.entries[entryID] = entry
	return entry, nil
}

func (r *memoryJournalRepo) MarkReversed(ctx context.Context, entryID, userID int64, at time.Time) error {
	entry := r.entries[entryID]
	if entry.Status != EntryStatusPosted {
		return fmt.Errorf("journal entry %d not reversible: %w", entryID, shared.ErrInvalidState)
	}
	entry.Status = EntryStatusReversed
	entry.ReversedBy = &userID
	entry.ReversedAt = &at
	r.entries[entryID] = entry
	return nil
}

func (r *memoryJournalRepo) MissingAccounts(ctx context.Context, orgID int64, accountIDs []int64) ([]int64, error) {
	var missing []int64
	for _, id := range accountIDs {
		if r.accounts[id] != orgID {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

type stubGuard struct {
	lockedName string
	locked     bool
}

func (g stubGuard) LockedPeriodFor(ctx context.Context, orgID int64, date time.Time) (string, bool, error) {
	return g.lockedName, g.locked, nil
}

func money(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func balancedLines(debitAccount, creditAccount int64, amount int64) []LineInput {
	return []LineInput{
		{AccountID: debitAccount, Debit: money(amount)},
		{AccountID: creditAccount, Credit: money(amount)},
	}
}

func newTestService(repo Repository, guard PeriodGuard) *Service {
	return NewService(nil, repo, guard, nil, nil)
}

func TestCreateDraftRejectsUnbalancedLines(t *testing.T) {
	repo := newMemoryJournalRepo(10, 20)
	svc := newTestService(repo, stubGuard{})

	_, err := svc.CreateDraft(context.Background(), DraftInput{
		OrgID: 1,
		Date:  time.Now(),
		Lines: []LineInput{
			{AccountID: 10, Debit: money(100)},
			{AccountID: 20, Credit: money(90)},
		},
	})
	require.ErrorIs(t, err, shared.ErrUnbalancedEntry)
	require.Empty(t, repo.entries, "no rows may exist after a rejected entry")
}

func TestCreateDraftRejectsUnknownAccount(t *testing.T) {
	svc := newTestService(newMemoryJournalRepo(10), stubGuard{})

	_, err := svc.CreateDraft(context.Background(), DraftInput{
		OrgID: 1,
		Date:  time.Now(),
		Lines: balancedLines(10, 99, 100),
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestBalanceToleranceAbsorbsRounding(t *testing.T) {
	svc := newTestService(newMemoryJournalRepo(10, 20), stubGuard{})

	entry, err := svc.CreateDraft(context.Background(), DraftInput{
		OrgID: 1,
		Date:  time.Now(),
		Lines: []LineInput{
			{AccountID: 10, Debit: decimal.RequireFromString("100.004")},
			{AccountID: 20, Credit: decimal.RequireFromString("100.00")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, EntryStatusDraft, entry.Status)
}

func TestPostDraftThenRepostFails(t *testing.T) {
	svc := newTestService(newMemoryJournalRepo(10, 20), stubGuard{})

	draft, err := svc.CreateDraft(context.Background(), DraftInput{OrgID: 1, Date: time.Now(), Lines: balancedLines(10, 20, 500)})
	require.NoError(t, err)

	posted, err := svc.Post(context.Background(), 1, draft.ID, 42)
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, posted.Status)
	require.NotNil(t, posted.PostedBy)
	require.Equal(t, int64(42), *posted.PostedBy)

	_, err = svc.Post(context.Background(), 1, draft.ID, 42)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestPostRejectsLockedPeriod(t *testing.T) {
	repo := newMemoryJournalRepo(10, 20)
	svc := newTestService(repo, stubGuard{lockedName: "2026-01", locked: true})

	draft, err := svc.CreateDraft(context.Background(), DraftInput{OrgID: 1, Date: time.Now(), Lines: balancedLines(10, 20, 500)})
	require.NoError(t, err, "draft creation skips the period-lock check")

	_, err = svc.Post(context.Background(), 1, draft.ID, 42)
	require.ErrorIs(t, err, shared.ErrPeriodLocked)

	var lockedErr *shared.PeriodLockedError
	require.ErrorAs(t, err, &lockedErr)
	require.Equal(t, "2026-01", lockedErr.Period)
}

func TestPostDirectIdempotency(t *testing.T) {
	repo := newMemoryJournalRepo(10, 20)
	svc := newTestService(repo, stubGuard{})

	in := PostingInput{
		OrgID:    1,
		Date:     time.Now(),
		Memo:     "bill 77 opened",
		Source:   SourceVendorBill,
		SourceID: "77",
		Lines:    balancedLines(10, 20, 1000),
		UserID:   42,
	}
	first, err := svc.PostDirect(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, first.Status)

	second, err := svc.PostDirect(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, repo.entries, 1, "exactly one entry per business event")
}

func TestPostDirectRejectsLockedPeriod(t *testing.T) {
	repo := newMemoryJournalRepo(10, 20)
	svc := newTestService(repo, stubGuard{lockedName: "2026-01", locked: true})

	_, err := svc.PostDirect(context.Background(), PostingInput{
		OrgID:    1,
		Date:     time.Now(),
		Source:   SourceOrder,
		SourceID: "o-1",
		Lines:    balancedLines(10, 20, 100),
	})
	require.ErrorIs(t, err, shared.ErrPeriodLocked)
	require.Empty(t, repo.entries)
}

func TestReverseSwapsLinesAndLinksBothWays(t *testing.T) {
	repo := newMemoryJournalRepo(10, 20)
	svc := newTestService(repo, stubGuard{})

	original, err := svc.PostDirect(context.Background(), PostingInput{
		OrgID:    1,
		Date:     time.Now(),
		Source:   SourceVendorBill,
		SourceID: "9",
		Lines: []LineInput{
			{AccountID: 10, Debit: money(300)},
			{AccountID: 20, Credit: money(300)},
		},
		UserID: 42,
	})
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), ReverseInput{OrgID: 1, EntryID: original.ID, UserID: 42})
	require.NoError(t, err)
	require.Equal(t, SourceReversal, reversal.Source)
	require.NotNil(t, reversal.ReversesEntryID)
	require.Equal(t, original.ID, *reversal.ReversesEntryID)

	require.Len(t, reversal.Lines, 2)
	require.True(t, reversal.Lines[0].Credit.Equal(money(300)), "debit became credit")
	require.True(t, reversal.Lines[1].Debit.Equal(money(300)), "credit became debit")

	// Net effect per account across both entries is zero.
	net := make(map[int64]decimal.Decimal)
	for _, entryID := range []int64{original.ID, reversal.ID} {
		for _, line := range repo.lines[entryID] {
			net[line.AccountID] = net[line.AccountID].Add(line.Debit).Sub(line.Credit)
		}
	}
	for accountID, balance := range net {
		require.True(t, balance.IsZero(), "account %d net balance must be zero, got %s", accountID, balance)
	}

	flipped, err := svc.GetEntry(context.Background(), 1, original.ID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusReversed, flipped.Status)
	require.NotNil(t, flipped.ReversedAt)

	// A reversed entry can never be reversed again.
	_, err = svc.Reverse(context.Background(), ReverseInput{OrgID: 1, EntryID: original.ID, UserID: 42})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestReverseChecksPeriodForReversalDate(t *testing.T) {
	repo := newMemoryJournalRepo(10, 20)
	open := newTestService(repo, stubGuard{})

	original, err := open.PostDirect(context.Background(), PostingInput{
		OrgID: 1, Date: time.Now(), Source: SourceOrder, SourceID: "o-2",
		Lines: balancedLines(10, 20, 50), UserID: 1,
	})
	require.NoError(t, err)

	lockedSvc := newTestService(repo, stubGuard{lockedName: "2026-02", locked: true})
	_, err = lockedSvc.Reverse(context.Background(), ReverseInput{OrgID: 1, EntryID: original.ID, UserID: 1})
	require.ErrorIs(t, err, shared.ErrPeriodLocked)
}
