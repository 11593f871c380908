package mappings

import "time"

// GL mapping keys. Each org configures which chart of accounts node backs
// these roles; posting flows fail with a missing-mapping error when the role
// they need is unconfigured and no heuristic fallback matches.
const (
	KeyAPControl       = "AP_CONTROL"
	KeyARControl       = "AR_CONTROL"
	KeySalesRevenue    = "SALES_REVENUE"
	KeySalesAdjustment = "SALES_ADJUSTMENT"
	KeyPurchaseExpense = "PURCHASE_EXPENSE"
	KeyCOGS            = "COGS"
	KeyInventory       = "INVENTORY"
	KeyCashDefault     = "CASH_DEFAULT"
	KeyCashOverShort   = "CASH_OVER_SHORT"
)

// methodKeyPrefix namespaces payment-method mappings inside the same table.
const methodKeyPrefix = "METHOD:"

// AccountMapping links a GL role or payment method to a ledger account.
type AccountMapping struct {
	ID        int64
	OrgID     int64
	Key       string
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentMethod enumerates tender types seen by the POS and back office.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodCard         PaymentMethod = "CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodMobileMoney  PaymentMethod = "MOBILE_MONEY"
	MethodCheque       PaymentMethod = "CHEQUE"
)

// nameHints drive the heuristic account lookup for unmapped methods.
var nameHints = map[PaymentMethod][]string{
	MethodCash:         {"cash"},
	MethodCard:         {"card", "bank"},
	MethodBankTransfer: {"bank"},
	MethodMobileMoney:  {"mobile", "momo"},
	MethodCheque:       {"bank", "cheque"},
}
