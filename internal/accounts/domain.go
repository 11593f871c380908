package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeCOGS      AccountType = "COGS"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity,
		AccountTypeRevenue, AccountTypeCOGS, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether debits increase balances of this type.
// Assets, COGS and expenses are debit-normal; liabilities, equity and
// revenue are credit-normal.
func (t AccountType) DebitNormal() bool {
	switch t {
	case AccountTypeAsset, AccountTypeCOGS, AccountTypeExpense:
		return true
	}
	return false
}

// Account models a chart of accounts node. Code is unique per org. Once an
// account has posted journal lines its type is frozen; the name may still be
// relabelled.
type Account struct {
	ID        int64
	OrgID     int64
	Code      string
	Name      string
	Type      AccountType
	ParentID  *int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListFilter narrows account listings.
type ListFilter struct {
	Type       AccountType
	ActiveOnly bool
	Query      string
}
