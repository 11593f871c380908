package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridianpos/meridian/internal/shared"
)

// PeriodGuard answers whether a date falls inside a LOCKED fiscal period.
type PeriodGuard interface {
	LockedPeriodFor(ctx context.Context, orgID int64, date time.Time) (name string, locked bool, err error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics counts ledger activity. Implemented by the observability package.
type Metrics interface {
	ObservePosting(source Source)
	ObserveIdempotentHit(source Source)
}

// DraftInput carries a manual DRAFT entry. Drafts don't affect reports, so no
// period-lock check applies until posting.
type DraftInput struct {
	OrgID     int64
	BranchID  *int64
	Date      time.Time
	Memo      string
	Lines     []LineInput
	CreatedBy int64
}

// PostingInput carries a system-generated entry posted in one step.
type PostingInput struct {
	OrgID    int64
	BranchID *int64
	Date     time.Time
	Memo     string
	Source   Source
	SourceID string
	Lines    []LineInput
	UserID   int64
}

// ReverseInput identifies the entry to reverse. Date defaults to now.
type ReverseInput struct {
	OrgID   int64
	EntryID int64
	UserID  int64
	Date    *time.Time
}

// ListFilter narrows entry listings.
type ListFilter struct {
	Source   Source
	Status   EntryStatus
	From     *time.Time
	To       *time.Time
	BranchID *int64
	Page     int
	PerPage  int
}

// Service owns all JournalEntry mutation. AP, AR, and the posting adapter go
// through it for every GL-affecting transition.
type Service struct {
	logger  *slog.Logger
	repo    Repository
	guard   PeriodGuard
	audit   AuditPort
	metrics Metrics
	now     func() time.Time
}

func NewService(logger *slog.Logger, repo Repository, guard PeriodGuard, audit AuditPort, metrics Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, repo: repo, guard: guard, audit: audit, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateDraft validates and persists an unposted entry. The balance invariant
// is enforced here too: an unbalanced draft never reaches the store.
func (s *Service) CreateDraft(ctx context.Context, in DraftInput) (JournalEntry, error) {
	if in.OrgID == 0 || in.Date.IsZero() {
		return JournalEntry{}, fmt.Errorf("org and date are required: %w", shared.ErrValidation)
	}
	if err := ValidateLines(in.Lines); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.checkAccounts(ctx, tx, in.OrgID, in.Lines); err != nil {
			return err
		}
		inserted, err := tx.InsertEntry(ctx, insertEntry{
			OrgID:    in.OrgID,
			BranchID: in.BranchID,
			Date:     in.Date,
			Memo:     in.Memo,
			Source:   SourceManual,
			Status:   EntryStatusDraft,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, in.Lines); err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return s.repo.GetEntry(ctx, in.OrgID, entry.ID)
}

// Post transitions a DRAFT entry to POSTED after the period-lock check.
func (s *Service) Post(ctx context.Context, orgID, entryID, userID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, orgID, entryID)
		if err != nil {
			return err
		}
		if current.Status != EntryStatusDraft {
			return fmt.Errorf("entry %d is %s, only drafts can be posted: %w", entryID, current.Status, shared.ErrInvalidState)
		}
		if err := s.checkPeriod(ctx, orgID, current.Date); err != nil {
			return err
		}
		entry, err = tx.MarkPosted(ctx, entryID, userID, s.now())
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, orgID, userID, "journal.post", entry.ID, map[string]any{"source": entry.Source})
	if s.metrics != nil {
		s.metrics.ObservePosting(entry.Source)
	}
	return s.repo.GetEntry(ctx, orgID, entry.ID)
}

// PostDirect validates and posts a system-generated entry in one step. It
// guarantees at most one posting per business event: a second call with the
// same (source, sourceID) logs and returns the existing entry untouched, so
// upstream workflows can retry safely.
func (s *Service) PostDirect(ctx context.Context, in PostingInput) (JournalEntry, error) {
	if in.OrgID == 0 || in.Date.IsZero() {
		return JournalEntry{}, fmt.Errorf("org and date are required: %w", shared.ErrValidation)
	}
	if in.Source == "" || in.SourceID == "" {
		return JournalEntry{}, fmt.Errorf("source and sourceId are required: %w", shared.ErrValidation)
	}
	if err := ValidateLines(in.Lines); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	var duplicate bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindBySource(ctx, in.OrgID, in.Source, in.SourceID)
		if err == nil {
			entry, duplicate = existing, true
			return nil
		}
		if !isNotFound(err) {
			return err
		}
		if err := s.checkPeriod(ctx, in.OrgID, in.Date); err != nil {
			return err
		}
		if err := s.checkAccounts(ctx, tx, in.OrgID, in.Lines); err != nil {
			return err
		}
		now := s.now()
		inserted, err := tx.InsertEntry(ctx, insertEntry{
			OrgID:    in.OrgID,
			BranchID: in.BranchID,
			Date:     in.Date,
			Memo:     in.Memo,
			Source:   in.Source,
			SourceID: in.SourceID,
			Status:   EntryStatusPosted,
			PostedBy: &in.UserID,
			PostedAt: &now,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, in.Lines); err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if duplicate {
		s.logger.Info("duplicate posting skipped",
			slog.String("source", string(in.Source)),
			slog.String("source_id", in.SourceID),
			slog.Int64("entry_id", entry.ID))
		if s.metrics != nil {
			s.metrics.ObserveIdempotentHit(in.Source)
		}
		return s.repo.GetEntry(ctx, in.OrgID, entry.ID)
	}
	s.recordAudit(ctx, in.OrgID, in.UserID, "journal.post_direct", entry.ID, map[string]any{
		"source":    in.Source,
		"source_id": in.SourceID,
	})
	if s.metrics != nil {
		s.metrics.ObservePosting(in.Source)
	}
	return s.repo.GetEntry(ctx, in.OrgID, entry.ID)
}

// Reverse creates a new POSTED entry with every line's debit and credit
// swapped and flips the original to REVERSED, atomically. The original is
// never mutated beyond its status stamp; history stays append-only.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	if in.EntryID == 0 {
		return JournalEntry{}, fmt.Errorf("entry id is required: %w", shared.ErrValidation)
	}
	reversalDate := s.now()
	if in.Date != nil {
		reversalDate = *in.Date
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, in.OrgID, in.EntryID)
		if err != nil {
			return err
		}
		if original.Status != EntryStatusPosted {
			return fmt.Errorf("entry %d is %s, only posted entries can be reversed: %w", in.EntryID, original.Status, shared.ErrInvalidState)
		}
		if err := s.checkPeriod(ctx, in.OrgID, reversalDate); err != nil {
			return err
		}
		lines, err := tx.GetLines(ctx, original.ID)
		if err != nil {
			return err
		}
		now := s.now()
		inserted, err := tx.InsertEntry(ctx, insertEntry{
			OrgID:           in.OrgID,
			BranchID:        original.BranchID,
			Date:            reversalDate,
			Memo:            fmt.Sprintf("Reversal of entry %d", original.ID),
			Source:          SourceReversal,
			SourceID:        strconv.FormatInt(original.ID, 10),
			Status:          EntryStatusPosted,
			PostedBy:        &in.UserID,
			PostedAt:        &now,
			ReversesEntryID: &original.ID,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, reverseLines(lines)); err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, original.ID, in.UserID, now); err != nil {
			return err
		}
		reversal = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, in.OrgID, in.UserID, "journal.reverse", in.EntryID, map[string]any{"reversal_id": reversal.ID})
	if s.metrics != nil {
		s.metrics.ObservePosting(SourceReversal)
	}
	return s.repo.GetEntry(ctx, in.OrgID, reversal.ID)
}

// GetEntry fetches one entry with lines.
func (s *Service) GetEntry(ctx context.Context, orgID, entryID int64) (JournalEntry, error) {
	return s.repo.GetEntry(ctx, orgID, entryID)
}

// FindBySource returns the entry linked to a business event, if any.
func (s *Service) FindBySource(ctx context.Context, orgID int64, source Source, sourceID string) (JournalEntry, error) {
	return s.repo.FindBySource(ctx, orgID, source, sourceID)
}

// List returns entries matching the filter, newest first.
func (s *Service) List(ctx context.Context, orgID int64, filter ListFilter) ([]JournalEntry, shared.Pagination, error) {
	return s.repo.List(ctx, orgID, filter)
}

func (s *Service) checkPeriod(ctx context.Context, orgID int64, date time.Time) error {
	if s.guard == nil {
		return nil
	}
	name, locked, err := s.guard.LockedPeriodFor(ctx, orgID, date)
	if err != nil {
		return err
	}
	if locked {
		return &shared.PeriodLockedError{Period: name, Date: date}
	}
	return nil
}

func (s *Service) checkAccounts(ctx context.Context, tx TxRepository, orgID int64, lines []LineInput) error {
	ids := make([]int64, 0, len(lines))
	seen := make(map[int64]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	missing, err := tx.MissingAccounts(ctx, orgID, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("accounts %v not found in org %d: %w", missing, orgID, shared.ErrNotFound)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, orgID, userID int64, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrgID:    orgID,
		ActorID:  userID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: strconv.FormatInt(entryID, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
