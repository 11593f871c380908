package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianpos/meridian/internal/accounts"
	"github.com/meridianpos/meridian/internal/shared"
)

// Service derives financial statements from posted journal lines. Pure
// read side; every method is safe to serve from a replica.
type Service struct {
	logger *slog.Logger
	repo   Repository
	cache  *Cache
}

func NewService(logger *slog.Logger, repo Repository, cache *Cache) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, repo: repo, cache: cache}
}

const keyStamp = "2006-01-02"

// TrialBalance lists every account with posted activity through asOf and
// checks that raw debits and credits agree. A branch narrows the lines
// considered; nil means the whole org.
func (s *Service) TrialBalance(ctx context.Context, orgID int64, asOf time.Time, branchID *int64) (TrialBalance, error) {
	if asOf.IsZero() {
		return TrialBalance{}, fmt.Errorf("asOf date is required: %w", shared.ErrValidation)
	}
	key, err := s.cache.BuildKey(ctx, "reports", "tb", formatInt(orgID), branchKey(branchID), asOf.Format(keyStamp))
	if err != nil {
		return TrialBalance{}, err
	}
	var report TrialBalance
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
		return s.buildTrialBalance(ctx, orgID, asOf, branchID)
	})
	return report, err
}

func (s *Service) buildTrialBalance(ctx context.Context, orgID int64, asOf time.Time, branchID *int64) (TrialBalance, error) {
	balances, err := s.repo.Balances(ctx, orgID, branchID, nil, &asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	report := TrialBalance{AsOf: asOf}
	for _, b := range balances {
		report.Rows = append(report.Rows, TrialBalanceRow{
			AccountID: b.AccountID,
			Code:      b.Code,
			Name:      b.Name,
			Type:      b.Type,
			Debit:     b.Debit,
			Credit:    b.Credit,
		})
		report.TotalDebit = report.TotalDebit.Add(b.Debit)
		report.TotalCredit = report.TotalCredit.Add(b.Credit)
	}
	report.Balanced = shared.WithinTolerance(report.TotalDebit, report.TotalCredit)
	if !report.Balanced {
		s.logger.Warn("trial balance out of balance",
			slog.Int64("org_id", orgID),
			slog.String("total_debit", report.TotalDebit.String()),
			slog.String("total_credit", report.TotalCredit.String()))
	}
	return report, nil
}

// ProfitAndLoss aggregates revenue, COGS, and expense activity over a range.
func (s *Service) ProfitAndLoss(ctx context.Context, orgID int64, from, to time.Time, branchID *int64) (ProfitAndLoss, error) {
	if from.IsZero() || to.IsZero() {
		return ProfitAndLoss{}, fmt.Errorf("from and to dates are required: %w", shared.ErrValidation)
	}
	if to.Before(from) {
		return ProfitAndLoss{}, fmt.Errorf("to precedes from: %w", shared.ErrValidation)
	}
	key, err := s.cache.BuildKey(ctx, "reports", "pl", formatInt(orgID), branchKey(branchID), from.Format(keyStamp), to.Format(keyStamp))
	if err != nil {
		return ProfitAndLoss{}, err
	}
	var report ProfitAndLoss
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
		return s.buildProfitAndLoss(ctx, orgID, from, to, branchID)
	})
	return report, err
}

func (s *Service) buildProfitAndLoss(ctx context.Context, orgID int64, from, to time.Time, branchID *int64) (ProfitAndLoss, error) {
	balances, err := s.repo.Balances(ctx, orgID, branchID, &from, &to)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	report := ProfitAndLoss{From: from, To: to}
	for _, b := range balances {
		line := ReportLine{AccountID: b.AccountID, Code: b.Code, Name: b.Name, Amount: b.Net()}
		switch b.Type {
		case accounts.AccountTypeRevenue:
			report.Revenue = append(report.Revenue, line)
			report.TotalRevenue = report.TotalRevenue.Add(line.Amount)
		case accounts.AccountTypeCOGS:
			report.COGS = append(report.COGS, line)
			report.TotalCOGS = report.TotalCOGS.Add(line.Amount)
		case accounts.AccountTypeExpense:
			report.Expenses = append(report.Expenses, line)
			report.TotalExpenses = report.TotalExpenses.Add(line.Amount)
		}
	}
	report.GrossProfit = report.TotalRevenue.Sub(report.TotalCOGS)
	report.NetProfit = report.GrossProfit.Sub(report.TotalExpenses)
	return report, nil
}

// BalanceSheet states assets, liabilities, and equity as of a date, folding
// lifetime earnings into equity as retained earnings.
func (s *Service) BalanceSheet(ctx context.Context, orgID int64, asOf time.Time, branchID *int64) (BalanceSheet, error) {
	if asOf.IsZero() {
		return BalanceSheet{}, fmt.Errorf("asOf date is required: %w", shared.ErrValidation)
	}
	key, err := s.cache.BuildKey(ctx, "reports", "bs", formatInt(orgID), branchKey(branchID), asOf.Format(keyStamp))
	if err != nil {
		return BalanceSheet{}, err
	}
	var report BalanceSheet
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
		return s.buildBalanceSheet(ctx, orgID, asOf, branchID)
	})
	return report, err
}

func (s *Service) buildBalanceSheet(ctx context.Context, orgID int64, asOf time.Time, branchID *int64) (BalanceSheet, error) {
	balances, err := s.repo.Balances(ctx, orgID, branchID, nil, &asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	report := BalanceSheet{AsOf: asOf}
	var earnings decimal.Decimal
	for _, b := range balances {
		line := ReportLine{AccountID: b.AccountID, Code: b.Code, Name: b.Name, Amount: b.Net()}
		switch b.Type {
		case accounts.AccountTypeAsset:
			report.Assets = append(report.Assets, line)
			report.TotalAssets = report.TotalAssets.Add(line.Amount)
		case accounts.AccountTypeLiability:
			report.Liabilities = append(report.Liabilities, line)
			report.TotalLiabilities = report.TotalLiabilities.Add(line.Amount)
		case accounts.AccountTypeEquity:
			report.Equity = append(report.Equity, line)
			report.TotalEquity = report.TotalEquity.Add(line.Amount)
		case accounts.AccountTypeRevenue:
			earnings = earnings.Add(line.Amount)
		case accounts.AccountTypeCOGS, accounts.AccountTypeExpense:
			earnings = earnings.Sub(line.Amount)
		}
	}
	report.RetainedEarnings = earnings
	report.TotalEquity = report.TotalEquity.Add(earnings)
	return report, nil
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func branchKey(branchID *int64) string {
	if branchID == nil {
		return "all"
	}
	return formatInt(*branchID)
}
