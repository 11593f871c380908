package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeBankService struct {
	importedOrg     int64
	importedAccount int64
	statement       string
	importErr       error
	autoMatched     int
}

func (f *fakeBankService) ImportCSV(_ context.Context, orgID, accountID int64, text string) (int, error) {
	f.importedOrg = orgID
	f.importedAccount = accountID
	f.statement = text
	if f.importErr != nil {
		return 0, f.importErr
	}
	return 3, nil
}

func (f *fakeBankService) AutoMatch(_ context.Context, _, _ int64, _, _ *time.Time) (int, error) {
	f.autoMatched++
	return 2, nil
}

func TestBankImportHandler(t *testing.T) {
	svc := &fakeBankService{}
	handler := NewBankImportHandler(svc, nil, nil)

	task, err := NewBankImportTask(BankImportPayload{
		OrgID:     1,
		AccountID: 7,
		Statement: "Date,Amount\n2025-01-02,10.00",
	})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, int64(1), svc.importedOrg)
	require.Equal(t, int64(7), svc.importedAccount)
	require.Contains(t, svc.statement, "2025-01-02")
}

func TestBankImportHandlerPropagatesFailure(t *testing.T) {
	svc := &fakeBankService{importErr: errors.New("bank account: not found")}
	handler := NewBankImportHandler(svc, nil, nil)

	task, err := NewBankImportTask(BankImportPayload{OrgID: 1, AccountID: 404, Statement: "x"})
	require.NoError(t, err)
	require.Error(t, handler(context.Background(), task))
}

func TestBankImportHandlerSkipsBadPayload(t *testing.T) {
	handler := NewBankImportHandler(&fakeBankService{}, nil, nil)
	err := handler(context.Background(), asynq.NewTask(TaskBankImport, []byte("{broken")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestBankAutoMatchHandler(t *testing.T) {
	svc := &fakeBankService{}
	handler := NewBankAutoMatchHandler(svc, nil, nil)

	task, err := NewBankAutoMatchTask(BankAutoMatchPayload{OrgID: 1, AccountID: 7})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, 1, svc.autoMatched)
}
