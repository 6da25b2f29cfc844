// Package order defines the order aggregate: the order itself, its lines,
// applied discounts, payments, refunds and audit events.
package order

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusDraft             Status = "draft"
	StatusHeld              Status = "held"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
)

// Finalized reports whether orders in this status are closed to pricing.
func (s Status) Finalized() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRefunded, StatusPartiallyRefunded:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusHeld || s.Finalized()
}

// Order is the aggregate root. Lines, discounts, payments and refunds are
// loaded separately through the Store.
type Order struct {
	ID            string
	Status        Status
	CustomerID    string
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	TaxTotal      decimal.Decimal
	Total         decimal.Decimal
	// Overrides holds catalog discount IDs the matcher must leave alone.
	Overrides   DiscountSet
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// New returns an empty draft order.
func New(id string, now time.Time) *Order {
	return &Order{
		ID:            id,
		Status:        StatusDraft,
		Subtotal:      decimal.Zero,
		DiscountTotal: decimal.Zero,
		TaxTotal:      decimal.Zero,
		Total:         decimal.Zero,
		Overrides:     DiscountSet{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Finalized reports whether the order can no longer be repriced.
func (o *Order) Finalized() bool {
	return o.Status.Finalized()
}

// Hold parks a draft order.
func (o *Order) Hold() error {
	return o.transition("hold", StatusHeld, StatusDraft)
}

// Resume reopens a held order.
func (o *Order) Resume() error {
	return o.transition("resume", StatusDraft, StatusHeld)
}

// Cancel abandons a draft or held order.
func (o *Order) Cancel() error {
	return o.transition("cancel", StatusCancelled, StatusDraft, StatusHeld)
}

// Complete marks the order paid. Preconditions on lines and payments are
// checked by the caller.
func (o *Order) Complete(now time.Time) error {
	if err := o.transition("complete", StatusCompleted, StatusDraft); err != nil {
		return err
	}
	o.CompletedAt = &now
	return nil
}

// MarkRefunded moves a completed order into one of the refunded states.
func (o *Order) MarkRefunded(full bool) error {
	to := StatusPartiallyRefunded
	if full {
		to = StatusRefunded
	}
	return o.transition("refund", to, StatusCompleted, StatusPartiallyRefunded)
}

func (o *Order) transition(op string, to Status, from ...Status) error {
	if !slices.Contains(from, o.Status) {
		return &TransitionError{Op: op, From: o.Status, Allowed: from}
	}
	o.Status = to
	return nil
}

// Override excludes a catalog discount from auto-application on this order.
func (o *Order) Override(discountID string) {
	if o.Overrides == nil {
		o.Overrides = DiscountSet{}
	}
	o.Overrides.Add(discountID)
}

// Unoverride allows the matcher to apply the catalog discount again. It
// reports whether the ID was overridden.
func (o *Order) Unoverride(discountID string) bool {
	return o.Overrides.Remove(discountID)
}

// DiscountSet is a set of catalog discount IDs.
type DiscountSet map[string]struct{}

// NewDiscountSet builds a set from ids.
func NewDiscountSet(ids ...string) DiscountSet {
	s := make(DiscountSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Has reports whether id is in the set. A nil set is empty.
func (s DiscountSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s DiscountSet) Add(id string) { s[id] = struct{}{} }

// Remove deletes id and reports whether it was present.
func (s DiscountSet) Remove(id string) bool {
	if !s.Has(id) {
		return false
	}
	delete(s, id)
	return true
}

// IDs returns the members in sorted order.
func (s DiscountSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Clone returns an independent copy.
func (s DiscountSet) Clone() DiscountSet {
	return NewDiscountSet(s.IDs()...)
}
