package accounts

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridianpos/meridian/internal/shared"
)

type memoryAccountRepo struct {
	accounts map[int64]Account
	used     map[int64]bool
	nextID   int64
}

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{accounts: make(map[int64]Account), used: make(map[int64]bool)}
}

func (r *memoryAccountRepo) Insert(ctx context.Context, in CreateInput) (Account, error) {
	r.nextID++
	account := Account{
		ID:       r.nextID,
		OrgID:    in.OrgID,
		Code:     in.Code,
		Name:     in.Name,
		Type:     in.Type,
		ParentID: in.ParentID,
		IsActive: true,
	}
	r.accounts[account.ID] = account
	return account, nil
}

func (r *memoryAccountRepo) Update(ctx context.Context, account Account) (Account, error) {
	if _, ok := r.accounts[account.ID]; !ok {
		return Account{}, fmt.Errorf("account: %w", shared.ErrNotFound)
	}
	r.accounts[account.ID] = account
	return account, nil
}

func (r *memoryAccountRepo) Get(ctx context.Context, orgID, accountID int64) (Account, error) {
	account, ok := r.accounts[accountID]
	if !ok || account.OrgID != orgID {
		return Account{}, fmt.Errorf("account: %w", shared.ErrNotFound)
	}
	return account, nil
}

func (r *memoryAccountRepo) GetByCode(ctx context.Context, orgID int64, code string) (Account, error) {
	for _, account := range r.accounts {
		if account.OrgID == orgID && account.Code == code {
			return account, nil
		}
	}
	return Account{}, fmt.Errorf("account: %w", shared.ErrNotFound)
}

func (r *memoryAccountRepo) List(ctx context.Context, orgID int64, filter ListFilter) ([]Account, error) {
	var out []Account
	for _, account := range r.accounts {
		if account.OrgID != orgID {
			continue
		}
		if filter.Type != "" && account.Type != filter.Type {
			continue
		}
		if filter.ActiveOnly && !account.IsActive {
			continue
		}
		if filter.Query != "" && !strings.Contains(account.Name, filter.Query) && !strings.Contains(account.Code, filter.Query) {
			continue
		}
		out = append(out, account)
	}
	return out, nil
}

func (r *memoryAccountRepo) HasJournalLines(ctx context.Context, accountID int64) (bool, error) {
	return r.used[accountID], nil
}

func TestCreateAccountValidation(t *testing.T) {
	svc := NewService(newMemoryAccountRepo())

	_, err := svc.Create(context.Background(), CreateInput{OrgID: 1, Code: "", Name: "Cash", Type: AccountTypeAsset})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), CreateInput{OrgID: 1, Code: "1000", Name: "Cash", Type: "WEIRD"})
	require.ErrorIs(t, err, shared.ErrValidation)

	account, err := svc.Create(context.Background(), CreateInput{OrgID: 1, Code: "1000", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)
	require.True(t, account.IsActive)

	_, err = svc.Create(context.Background(), CreateInput{OrgID: 1, Code: "1000", Name: "Cash Again", Type: AccountTypeAsset})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateAccountTypeFrozenAfterUse(t *testing.T) {
	repo := newMemoryAccountRepo()
	svc := NewService(repo)

	account, err := svc.Create(context.Background(), CreateInput{OrgID: 1, Code: "4000", Name: "Sales", Type: AccountTypeRevenue})
	require.NoError(t, err)

	repo.used[account.ID] = true

	_, err = svc.Update(context.Background(), UpdateInput{AccountID: account.ID, OrgID: 1, Type: AccountTypeExpense, IsActive: true})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	updated, err := svc.Update(context.Background(), UpdateInput{AccountID: account.ID, OrgID: 1, Name: "Food Sales", Type: AccountTypeRevenue, IsActive: true})
	require.NoError(t, err)
	require.Equal(t, "Food Sales", updated.Name)
	require.Equal(t, AccountTypeRevenue, updated.Type)
}

func TestAccountTypeConventions(t *testing.T) {
	require.True(t, AccountTypeAsset.DebitNormal())
	require.True(t, AccountTypeCOGS.DebitNormal())
	require.True(t, AccountTypeExpense.DebitNormal())
	require.False(t, AccountTypeLiability.DebitNormal())
	require.False(t, AccountTypeEquity.DebitNormal())
	require.False(t, AccountTypeRevenue.DebitNormal())
}
