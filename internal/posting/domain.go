package posting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianpos/meridian/internal/journal"
	"github.com/meridianpos/meridian/internal/mappings"
)

// Request is the tagged-variant posting surface: any upstream workflow that
// already knows its lines hands them to one entry point, keeping the
// (source, sourceId) idempotency guard in a single place.
type Request struct {
	Source   journal.Source
	SourceID string
	BranchID *int64
	Date     time.Time
	Memo     string
	Lines    []journal.LineInput
}

// SaleClosedEvent is emitted when the front of house closes an order.
// OrderID is the POS order identifier and keys the idempotency guard, so
// replaying the event stream never double-books revenue.
type SaleClosedEvent struct {
	OrderID    uuid.UUID
	BranchID   *int64
	OccurredAt time.Time
	Gross      decimal.Decimal
	Method     mappings.PaymentMethod
}

// COGSEvent recognizes the cost of goods consumed by a closed order.
type COGSEvent struct {
	OrderID    uuid.UUID
	BranchID   *int64
	OccurredAt time.Time
	Cost       decimal.Decimal
}

// RefundEvent is emitted when money is returned to a guest.
type RefundEvent struct {
	RefundID   uuid.UUID
	BranchID   *int64
	OccurredAt time.Time
	Amount     decimal.Decimal
	Method     mappings.PaymentMethod
}

// CashMovementKind enumerates drawer cash events.
type CashMovementKind string

const (
	// MovementSafeDrop moves drawer cash into the safe or bank.
	MovementSafeDrop CashMovementKind = "SAFE_DROP"
	// MovementPickup floats cash back into a drawer.
	MovementPickup CashMovementKind = "PICKUP"
	// MovementOver books a counted surplus against over/short.
	MovementOver CashMovementKind = "OVER"
	// MovementShort books a counted deficit against over/short.
	MovementShort CashMovementKind = "SHORT"
)

// CashMovementEvent is emitted by drawer counts, safe drops, and pickups.
type CashMovementEvent struct {
	MovementID uuid.UUID
	BranchID   *int64
	OccurredAt time.Time
	Kind       CashMovementKind
	Amount     decimal.Decimal
}
