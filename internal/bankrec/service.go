package bankrec

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianpos/meridian/internal/shared"
)

// autoMatchWindow is how far apart a bank row and an internal record may be
// dated and still auto-match.
const autoMatchWindow = 3 * 24 * time.Hour

// Candidate is an internal money movement a bank row can match against.
type Candidate struct {
	Source   MatchSource
	SourceID string
}

// Metrics counts reconciliation activity.
type Metrics interface {
	ObserveMatch(auto bool)
}

// Service imports bank statements and links their rows to internal payment,
// refund, and cash movement records.
type Service struct {
	logger  *slog.Logger
	repo    Repository
	metrics Metrics
	now     func() time.Time
}

func NewService(logger *slog.Logger, repo Repository, metrics Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, repo: repo, metrics: metrics, now: time.Now}
}

// AccountInput carries bank account create/update fields.
type AccountInput struct {
	Name          string `validate:"required,min=2,max=160"`
	AccountNumber string `validate:"required,max=64"`
	Currency      string `validate:"required,len=3"`
}

func (s *Service) UpsertAccount(ctx context.Context, orgID int64, in AccountInput) (BankAccount, error) {
	if in.Name == "" || in.AccountNumber == "" {
		return BankAccount{}, fmt.Errorf("name and account number are required: %w", shared.ErrValidation)
	}
	return s.repo.UpsertAccount(ctx, BankAccount{
		OrgID:         orgID,
		Name:          in.Name,
		AccountNumber: in.AccountNumber,
		Currency:      in.Currency,
	})
}

func (s *Service) ListAccounts(ctx context.Context, orgID int64) ([]BankAccount, error) {
	return s.repo.ListAccounts(ctx, orgID)
}

// ImportCSV parses a raw statement and bulk-inserts its rows as unreconciled
// transactions. The whole batch lands or none of it does.
func (s *Service) ImportCSV(ctx context.Context, orgID, accountID int64, text string) (int, error) {
	account, err := s.repo.GetAccount(ctx, orgID, accountID)
	if err != nil {
		return 0, err
	}
	rows, err := parseStatement(text)
	if err != nil {
		return 0, err
	}
	if err := s.repo.InsertTxns(ctx, account.ID, rows); err != nil {
		return 0, err
	}
	s.logger.Info("bank statement imported",
		slog.Int64("account_id", account.ID),
		slog.Int("rows", len(rows)))
	return len(rows), nil
}

func (s *Service) ListUnreconciled(ctx context.Context, orgID, accountID int64) ([]BankTxn, error) {
	if _, err := s.repo.GetAccount(ctx, orgID, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListUnreconciled(ctx, accountID)
}

// Match links one bank transaction to one internal record. A transaction can
// carry at most one match; the reconciled flag is checked under the row lock
// so two clerks cannot match the same row twice.
func (s *Service) Match(ctx context.Context, orgID, txnID int64, source MatchSource, sourceID string, userID int64) (ReconcileMatch, error) {
	if !source.Valid() {
		return ReconcileMatch{}, fmt.Errorf("unknown match source %q: %w", source, shared.ErrValidation)
	}
	if sourceID == "" {
		return ReconcileMatch{}, fmt.Errorf("source id is required: %w", shared.ErrValidation)
	}
	var match ReconcileMatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.GetTxnForUpdate(ctx, orgID, txnID)
		if err != nil {
			return err
		}
		if txn.Reconciled {
			return fmt.Errorf("bank transaction %d: %w", txnID, shared.ErrAlreadyReconciled)
		}
		match, err = tx.InsertMatch(ctx, ReconcileMatch{
			BankTxnID: txn.ID,
			Source:    source,
			SourceID:  sourceID,
			MatchedBy: userID,
		})
		if err != nil {
			return err
		}
		return tx.MarkReconciled(ctx, txn.ID)
	})
	if err != nil {
		return ReconcileMatch{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveMatch(false)
	}
	return match, nil
}

// AutoMatch walks unreconciled transactions and links each to the first
// unmatched payment or refund whose absolute amount equals the row's within
// the date window. Best effort: rows with no candidate are skipped and
// remain available for manual matching.
func (s *Service) AutoMatch(ctx context.Context, orgID, accountID int64, from, to *time.Time) (int, error) {
	if _, err := s.repo.GetAccount(ctx, orgID, accountID); err != nil {
		return 0, err
	}
	txns, err := s.repo.ListUnreconciled(ctx, accountID)
	if err != nil {
		return 0, err
	}
	matched := 0
	for _, txn := range txns {
		if from != nil && txn.Date.Before(*from) {
			continue
		}
		if to != nil && txn.Date.After(*to) {
			continue
		}
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetTxnForUpdate(ctx, orgID, txn.ID)
			if err != nil {
				return err
			}
			if current.Reconciled {
				return nil
			}
			candidate, found, err := tx.FindCandidate(ctx, orgID, current.Amount.Abs(),
				current.Date.Add(-autoMatchWindow), current.Date.Add(autoMatchWindow))
			if err != nil {
				return err
			}
			if !found {
				return nil
			}
			if _, err := tx.InsertMatch(ctx, ReconcileMatch{
				BankTxnID: current.ID,
				Source:    candidate.Source,
				SourceID:  candidate.SourceID,
			}); err != nil {
				return err
			}
			if err := tx.MarkReconciled(ctx, current.ID); err != nil {
				return err
			}
			matched++
			if s.metrics != nil {
				s.metrics.ObserveMatch(true)
			}
			return nil
		})
		if err != nil {
			return matched, err
		}
	}
	s.logger.Info("auto-match pass finished",
		slog.Int64("account_id", accountID),
		slog.Int("matched", matched),
		slog.Int("scanned", len(txns)))
	return matched, nil
}
