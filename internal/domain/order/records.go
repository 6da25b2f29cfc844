package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how a payment was tendered.
type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "cash"
	PaymentCard  PaymentMethod = "card"
	PaymentOther PaymentMethod = "other"
)

// Payment is money tendered against an order at completion.
type Payment struct {
	ID        string
	OrderID   string
	Method    PaymentMethod
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// Refund returns money for some or all of a completed order's lines.
type Refund struct {
	ID          string
	OrderID     string
	Amount      decimal.Decimal
	Reason      string
	ProcessedBy string
	Lines       []RefundLine
	CreatedAt   time.Time
}

// RefundLine is the refunded part of one order line.
type RefundLine struct {
	LineID   string
	Quantity int
	Amount   decimal.Decimal
	Restock  bool
}

// EventType names an audit event.
type EventType string

const (
	EventCreated            EventType = "created"
	EventLineAdded          EventType = "line_added"
	EventLineUpdated        EventType = "line_updated"
	EventLineRemoved        EventType = "line_removed"
	EventCustomerAssigned   EventType = "customer_assigned"
	EventDiscountApplied    EventType = "discount_applied"
	EventDiscountRemoved    EventType = "discount_removed"
	EventDiscountOverridden EventType = "discount_overridden"
	EventDiscountRestored   EventType = "discount_restored"
	EventRecalculated       EventType = "recalculated"
	EventHeld               EventType = "held"
	EventResumed            EventType = "resumed"
	EventCancelled          EventType = "cancelled"
	EventCompleted          EventType = "completed"
	EventRefunded           EventType = "refunded"
)

// Event is an immutable audit record. Events are only ever appended.
type Event struct {
	ID        string
	OrderID   string
	Type      EventType
	Actor     string
	Data      map[string]string
	CreatedAt time.Time
}
