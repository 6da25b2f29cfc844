package order

import (
	"github.com/shopspring/decimal"
)

// DiscountType is the order-level discount vocabulary. Catalog fixed_total
// rules become DiscountFixedAmount.
type DiscountType string

const (
	DiscountPercentage   DiscountType = "percentage"
	DiscountFixedAmount  DiscountType = "fixed_amount"
	DiscountFixedPerItem DiscountType = "fixed_per_item"
)

// Valid reports whether t is a known order discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixedAmount || t == DiscountFixedPerItem
}

// Scope selects the lines a discount is computed against.
type Scope string

const (
	ScopeAllItems      Scope = "all_items"
	ScopeSpecificItems Scope = "specific_items"
)

var hundred = decimal.NewFromInt(100)

// Discount is a discount applied to an order, either copied from a catalog
// rule by the matcher or entered by a cashier.
type Discount struct {
	ID      string
	OrderID string
	// Name, Type and Value are copies, so deleting the catalog rule does not
	// change history.
	Name             string
	Type             DiscountType
	Value            decimal.Decimal
	Scope            Scope
	CalculatedAmount decimal.Decimal
	// DiscountID references the catalog rule. Empty for manual discounts.
	DiscountID string
	// AppliedBy is the actor who applied it. Empty when auto-applied.
	AppliedBy string
	// LineIDs are the joined lines when Scope is ScopeSpecificItems.
	LineIDs []string
}

// AutoApplied reports whether the discount came from a catalog rule.
func (d *Discount) AutoApplied() bool {
	return d.DiscountID != ""
}

// Validate checks the discount before it is written.
func (d *Discount) Validate() error {
	switch {
	case d.OrderID == "":
		return &ValidationError{Entity: "order_discount", Field: "order_id", Message: "is required"}
	case d.Name == "":
		return &ValidationError{Entity: "order_discount", Field: "name", Message: "is required"}
	case !d.Type.Valid():
		return &ValidationError{Entity: "order_discount", Field: "discount_type", Message: "is not supported"}
	case d.Scope != ScopeAllItems && d.Scope != ScopeSpecificItems:
		return &ValidationError{Entity: "order_discount", Field: "scope", Message: "is not supported"}
	case d.Value.IsNegative():
		return &ValidationError{Entity: "order_discount", Field: "value", Message: "must not be negative"}
	case d.Type == DiscountPercentage && d.Value.GreaterThan(hundred):
		return &ValidationError{Entity: "order_discount", Field: "value", Message: "must not exceed 100"}
	case !d.Value.Equal(d.Value.Round(2)):
		return &ValidationError{Entity: "order_discount", Field: "value", Message: "must have at most 2 decimal places"}
	case d.CalculatedAmount.IsNegative():
		return &ValidationError{Entity: "order_discount", Field: "calculated_amount", Message: "must not be negative"}
	case hasRepeats(d.LineIDs):
		return &ValidationError{Entity: "order_discount", Field: "line_ids", Message: "must not repeat a line"}
	}
	return nil
}

func hasRepeats(ids []string) bool {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}

// LineDiscount is the per-line view of a manual discount entered against a
// single line. Its amount mirrors the linked order discount.
type LineDiscount struct {
	ID              string
	OrderID         string
	LineID          string
	OrderDiscountID string
	Name            string
	Type            DiscountType
	Value           decimal.Decimal
	Amount          decimal.Decimal
	AppliedBy       string
}

// Validate checks the line discount before it is written.
func (d *LineDiscount) Validate() error {
	switch {
	case d.OrderID == "" || d.LineID == "":
		return &ValidationError{Entity: "line_discount", Field: "line_id", Message: "is required"}
	case d.OrderDiscountID == "":
		return &ValidationError{Entity: "line_discount", Field: "order_discount_id", Message: "is required"}
	case !d.Type.Valid():
		return &ValidationError{Entity: "line_discount", Field: "discount_type", Message: "is not supported"}
	case d.Value.IsNegative():
		return &ValidationError{Entity: "line_discount", Field: "value", Message: "must not be negative"}
	}
	return nil
}
