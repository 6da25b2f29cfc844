package order

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
)

// Line is one sellable on an order. Name, Code, UnitPrice and
// ProductTaxCodeID are copied from the catalog when the line is added.
type Line struct {
	ID       string
	OrderID  string
	Sellable catalog.SellableRef
	Name     string
	Code     string
	Quantity int
	// UnitPrice is the snapshot price.
	UnitPrice decimal.Decimal
	// ProductTaxCodeID is the snapshot tax code of the sellable.
	ProductTaxCodeID string
	// TaxCodeID is the tax code currently in force on the line. It is
	// replaced by the customer's tax code while one is assigned.
	TaxCodeID      string
	TaxRate        decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	LineTotal      decimal.Decimal
	Position       int
}

// NewLine builds an unsaved line from a catalog snapshot.
func NewLine(id, orderID string, snap catalog.Snapshot, qty, position int) *Line {
	l := &Line{
		ID:               id,
		OrderID:          orderID,
		Sellable:         snap.Ref,
		Name:             snap.Name,
		Code:             snap.Code,
		Quantity:         qty,
		UnitPrice:        snap.UnitPrice,
		ProductTaxCodeID: snap.TaxCodeID,
		TaxCodeID:        snap.TaxCodeID,
		TaxRate:          decimal.Zero,
		DiscountAmount:   decimal.Zero,
		Position:         position,
	}
	l.Reprice()
	return l
}

// Subtotal is the pre-discount amount, unit price times quantity.
func (l *Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Reprice recomputes the stored derived amounts. Tax is charged on the
// pre-discount subtotal.
func (l *Line) Reprice() {
	subtotal := l.Subtotal()
	l.TaxAmount = subtotal.Mul(l.TaxRate).Round(2)
	l.LineTotal = subtotal.Sub(l.DiscountAmount).Add(l.TaxAmount).Round(2)
}

// Validate checks the line before it is written.
func (l *Line) Validate() error {
	switch {
	case l.OrderID == "":
		return &ValidationError{Entity: "line", Field: "order_id", Message: "is required"}
	case !l.Sellable.Kind.Valid() || l.Sellable.ID == "":
		return &ValidationError{Entity: "line", Field: "sellable", Message: "must reference a product or service"}
	case l.Quantity <= 0:
		return &ValidationError{Entity: "line", Field: "quantity", Message: "must be greater than 0"}
	case l.UnitPrice.IsNegative():
		return &ValidationError{Entity: "line", Field: "unit_price", Message: "must not be negative"}
	case l.TaxRate.IsNegative():
		return &ValidationError{Entity: "line", Field: "tax_rate", Message: "must not be negative"}
	}
	return nil
}

// SortLines orders lines by position, then ID, so the line that absorbs
// rounding slack does not depend on storage order.
func SortLines(lines []*Line) {
	slices.SortStableFunc(lines, func(a, b *Line) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
