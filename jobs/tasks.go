package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridianpos/meridian/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBankImport imports a bank statement off the request path.
	TaskBankImport = "bank:import"
	// TaskBankAutoMatch runs the reconciliation heuristic for one account.
	TaskBankAutoMatch = "bank:auto_match"
)

// BankImportPayload carries a raw statement to the import worker.
type BankImportPayload struct {
	OrgID     int64  `json:"orgId"`
	AccountID int64  `json:"accountId"`
	Statement string `json:"statement"`
}

// BankAutoMatchPayload identifies the account to sweep.
type BankAutoMatchPayload struct {
	OrgID     int64 `json:"orgId"`
	AccountID int64 `json:"accountId"`
}

// NewBankImportTask constructs an Asynq task for a statement import.
func NewBankImportTask(payload BankImportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBankImport, data), nil
}

// NewBankAutoMatchTask constructs an Asynq task for an auto-match sweep.
func NewBankAutoMatchTask(payload BankAutoMatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBankAutoMatch, data), nil
}

// BankService is the slice of the reconciliation service the worker needs.
type BankService interface {
	ImportCSV(ctx context.Context, orgID, accountID int64, text string) (int, error)
	AutoMatch(ctx context.Context, orgID, accountID int64, from, to *time.Time) (int, error)
}

// NewBankImportHandler builds the handler processing TaskBankImport tasks.
func NewBankImportHandler(svc BankService, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskBankImport)
		var payload BankImportPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		imported, err := svc.ImportCSV(ctx, payload.OrgID, payload.AccountID, payload.Statement)
		if err != nil {
			logger.Error("bank import job failed",
				slog.Int64("account_id", payload.AccountID),
				slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("bank import job finished",
			slog.Int64("account_id", payload.AccountID),
			slog.Int("rows", imported))
		return tracker.End(nil)
	}
}

// NewBankAutoMatchHandler builds the handler processing TaskBankAutoMatch tasks.
func NewBankAutoMatchHandler(svc BankService, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskBankAutoMatch)
		var payload BankAutoMatchPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		matched, err := svc.AutoMatch(ctx, payload.OrgID, payload.AccountID, nil, nil)
		if err != nil {
			logger.Error("auto-match job failed",
				slog.Int64("account_id", payload.AccountID),
				slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("auto-match job finished",
			slog.Int64("account_id", payload.AccountID),
			slog.Int("matched", matched))
		return tracker.End(nil)
	}
}
