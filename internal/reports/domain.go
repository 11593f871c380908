package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianpos/meridian/internal/accounts"
)

// AccountBalance is the per-account aggregate of posted journal lines the
// repository hands back. Debit and Credit are raw column sums.
type AccountBalance struct {
	AccountID int64
	Code      string
	Name      string
	Type      accounts.AccountType
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Net returns the balance signed by the account's normal side, so a healthy
// account of any type reads positive.
func (b AccountBalance) Net() decimal.Decimal {
	if b.Type.DebitNormal() {
		return b.Debit.Sub(b.Credit)
	}
	return b.Credit.Sub(b.Debit)
}

// TrialBalanceRow lists one account with its raw debit and credit totals.
type TrialBalanceRow struct {
	AccountID int64                `json:"accountId"`
	Code      string               `json:"code"`
	Name      string               `json:"name"`
	Type      accounts.AccountType `json:"type"`
	Debit     decimal.Decimal      `json:"debit"`
	Credit    decimal.Decimal      `json:"credit"`
}

// TrialBalance is the full listing as of a date. Balanced is a read-time
// sanity check; the write path already rejects unbalanced entries.
type TrialBalance struct {
	AsOf        time.Time         `json:"asOf"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"totalDebit"`
	TotalCredit decimal.Decimal   `json:"totalCredit"`
	Balanced    bool              `json:"balanced"`
}

// ReportLine is one account's contribution to a statement section.
type ReportLine struct {
	AccountID int64           `json:"accountId"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
}

// ProfitAndLoss covers a date range.
type ProfitAndLoss struct {
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	Revenue       []ReportLine    `json:"revenue"`
	COGS          []ReportLine    `json:"cogs"`
	Expenses      []ReportLine    `json:"expenses"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	TotalCOGS     decimal.Decimal `json:"totalCogs"`
	GrossProfit   decimal.Decimal `json:"grossProfit"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	NetProfit     decimal.Decimal `json:"netProfit"`
}

// BalanceSheet is the position as of a date. Earnings to date are folded into
// equity as a synthetic retained earnings line so the statement balances.
type BalanceSheet struct {
	AsOf             time.Time       `json:"asOf"`
	Assets           []ReportLine    `json:"assets"`
	Liabilities      []ReportLine    `json:"liabilities"`
	Equity           []ReportLine    `json:"equity"`
	RetainedEarnings decimal.Decimal `json:"retainedEarnings"`
	TotalAssets      decimal.Decimal `json:"totalAssets"`
	TotalLiabilities decimal.Decimal `json:"totalLiabilities"`
	TotalEquity      decimal.Decimal `json:"totalEquity"`
}
