// Package discount defines catalog-level discount rules. Rules are shared by
// many orders and are read-only from the pricing engine's point of view.
package discount

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
)

// Type enumerates the catalog discount strategies.
type Type string

const (
	// TypePercentage takes a percentage off the applicable subtotal.
	TypePercentage Type = "percentage"
	// TypeFixedTotal takes a fixed amount off the applicable subtotal.
	TypeFixedTotal Type = "fixed_total"
	// TypeFixedPerItem is priced like TypeFixedTotal by the engine.
	TypeFixedPerItem Type = "fixed_per_item"
)

// Valid reports whether t is a known discount type.
func (t Type) Valid() bool {
	switch t {
	case TypePercentage, TypeFixedTotal, TypeFixedPerItem:
		return true
	default:
		return false
	}
}

// ErrNotFound is returned when a catalog discount does not exist.
var ErrNotFound = errors.New("discount not found")

var hundred = decimal.NewFromInt(100)

// Discount is a catalog rule that the matcher may apply automatically.
type Discount struct {
	ID           string
	Name         string
	Type         Type
	Value        decimal.Decimal
	Active       bool
	AppliesToAll bool
	StartsAt     *time.Time
	EndsAt       *time.Time
	// Items lists the targeted sellables when AppliesToAll is false.
	Items []catalog.SellableRef
}

// ActiveAt reports whether the rule is switched on and now falls inside its
// optional activation window.
func (d Discount) ActiveAt(now time.Time) bool {
	if !d.Active {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return false
	}
	return true
}

// Targets reports whether the rule is configured for the given sellable.
// It ignores AppliesToAll.
func (d Discount) Targets(ref catalog.SellableRef) bool {
	return slices.Contains(d.Items, ref)
}

// Validate checks the rule before it is written to the catalog.
func (d Discount) Validate() error {
	switch {
	case d.Name == "":
		return errors.New("discount name is required")
	case !d.Type.Valid():
		return errors.Errorf("unsupported discount type: %q", d.Type)
	case d.Value.IsNegative():
		return errors.Errorf("discount %q: value must not be negative", d.Name)
	case d.Type == TypePercentage && d.Value.GreaterThan(hundred):
		return errors.Errorf("discount %q: percentage must not exceed 100", d.Name)
	case !d.Value.Equal(d.Value.Round(2)):
		return errors.Errorf("discount %q: value must have at most 2 decimal places", d.Name)
	case d.StartsAt != nil && d.EndsAt != nil && d.EndsAt.Before(*d.StartsAt):
		return errors.Errorf("discount %q: window ends before it starts", d.Name)
	}
	return nil
}

// Repository provides the currently active catalog rules.
type Repository interface {
	// ListActive returns rules active at now in a stable catalog order.
	ListActive(ctx context.Context, now time.Time) ([]Discount, error)
}
