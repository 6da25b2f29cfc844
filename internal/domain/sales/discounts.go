package sales

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/auth"
	"github.com/xenking/pos-pricing/internal/domain/order"
)

// ManualDiscount describes a discount entered by a cashier.
type ManualDiscount struct {
	Name  string
	Type  order.DiscountType
	Value decimal.Decimal
	// LineIDs limits the discount to the given lines. Empty means the whole
	// order.
	LineIDs []string
}

// ApplyDiscount adds a manual discount to an open order.
func (s *Service) ApplyDiscount(ctx context.Context, orderID string, in ManualDiscount) (*Snapshot, error) {
	return s.edit(ctx, orderID, order.EventDiscountApplied, func(ctx context.Context, st order.Store, o *order.Order) (map[string]string, error) {
		d := s.manualDiscount(ctx, o.ID, in)
		if len(in.LineIDs) > 0 {
			d.Scope = order.ScopeSpecificItems
			d.LineIDs = uniqueIDs(in.LineIDs)
		}
		if err := st.CreateDiscount(ctx, d); err != nil {
			return nil, errors.Wrap(err, "create discount")
		}
		return map[string]string{"discount_id": d.ID, "name": d.Name, "value": d.Value.String()}, nil
	})
}

// ApplyLineDiscount adds a manual discount against a single line. It is
// stored as a specific-items order discount plus the per-line record that
// mirrors its amount.
func (s *Service) ApplyLineDiscount(ctx context.Context, orderID, lineID string, in ManualDiscount) (*Snapshot, error) {
	return s.edit(ctx, orderID, order.EventDiscountApplied, func(ctx context.Context, st order.Store, o *order.Order) (map[string]string, error) {
		if _, err := getLine(ctx, st, o.ID, lineID); err != nil {
			return nil, err
		}

		d := s.manualDiscount(ctx, o.ID, in)
		d.Scope = order.ScopeSpecificItems
		d.LineIDs = []string{lineID}
		if err := st.CreateDiscount(ctx, d); err != nil {
			return nil, errors.Wrap(err, "create discount")
		}

		ld := &order.LineDiscount{
			ID:              s.newID(),
			OrderID:         o.ID,
			LineID:          lineID,
			OrderDiscountID: d.ID,
			Name:            d.Name,
			Type:            d.Type,
			Value:           d.Value,
			Amount:          decimal.Zero,
			AppliedBy:       d.AppliedBy,
		}
		if err := st.CreateLineDiscount(ctx, ld); err != nil {
			return nil, errors.Wrap(err, "create line discount")
		}
		return map[string]string{"discount_id": d.ID, "line_id": lineID, "value": d.Value.String()}, nil
	})
}

// uniqueIDs returns ids without repeats, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *Service) manualDiscount(ctx context.Context, orderID string, in ManualDiscount) *order.Discount {
	return &order.Discount{
		ID:               s.newID(),
		OrderID:          orderID,
		Name:             in.Name,
		Type:             in.Type,
		Value:            in.Value,
		Scope:            order.ScopeAllItems,
		CalculatedAmount: decimal.Zero,
		AppliedBy:        auth.Actor(ctx),
	}
}

// RemoveDiscount deletes a discount from an open order. Removing an
// auto-applied discount overrides its catalog rule so the matcher does not
// apply it again.
func (s *Service) RemoveDiscount(ctx context.Context, orderID, discountID string) (*Snapshot, error) {
	return s.edit(ctx, orderID, order.EventDiscountRemoved, func(ctx context.Context, st order.Store, o *order.Order) (map[string]string, error) {
		d, err := getDiscount(ctx, st, o.ID, discountID)
		if err != nil {
			return nil, err
		}
		if d.AutoApplied() {
			o.Override(d.DiscountID)
		}
		if err := st.DeleteDiscount(ctx, o.ID, d.ID); err != nil {
			return nil, errors.Wrapf(err, "delete discount %s", d.ID)
		}
		return map[string]string{"discount_id": d.ID, "catalog_discount_id": d.DiscountID}, nil
	})
}

// OverrideDiscount changes the value of a discount on an open order. An
// overridden auto-applied discount is kept as is by the matcher until it is
// restored.
func (s *Service) OverrideDiscount(ctx context.Context, orderID, discountID string, value decimal.Decimal) (*Snapshot, error) {
	return s.edit(ctx, orderID, order.EventDiscountOverridden, func(ctx context.Context, st order.Store, o *order.Order) (map[string]string, error) {
		d, err := getDiscount(ctx, st, o.ID, discountID)
		if err != nil {
			return nil, err
		}
		previous := d.Value
		d.Value = value
		if d.AutoApplied() {
			o.Override(d.DiscountID)
		}
		if err := st.UpdateDiscount(ctx, d); err != nil {
			return nil, errors.Wrapf(err, "update discount %s", d.ID)
		}

		lds, err := st.ListLineDiscounts(ctx, o.ID)
		if err != nil {
			return nil, errors.Wrap(err, "list line discounts")
		}
		for _, ld := range lds {
			if ld.OrderDiscountID != d.ID {
				continue
			}
			ld.Value = value
			if err := st.UpdateLineDiscount(ctx, ld); err != nil {
				return nil, errors.Wrapf(err, "update line discount %s", ld.ID)
			}
		}
		return map[string]string{
			"discount_id":    d.ID,
			"previous_value": previous.String(),
			"value":          value.String(),
		}, nil
	})
}

// RestoreDiscount lifts the override of a catalog rule. The overridden copy
// is dropped and the matcher decides afresh whether the rule applies.
func (s *Service) RestoreDiscount(ctx context.Context, orderID, catalogDiscountID string) (*Snapshot, error) {
	return s.edit(ctx, orderID, order.EventDiscountRestored, func(ctx context.Context, st order.Store, o *order.Order) (map[string]string, error) {
		if !o.Unoverride(catalogDiscountID) {
			return nil, errors.Wrapf(order.ErrDiscountNotFound, "discount %s is not overridden", catalogDiscountID)
		}

		discounts, err := st.ListDiscounts(ctx, o.ID)
		if err != nil {
			return nil, errors.Wrap(err, "list discounts")
		}
		for _, d := range discounts {
			if d.DiscountID != catalogDiscountID {
				continue
			}
			if err := st.DeleteDiscount(ctx, o.ID, d.ID); err != nil {
				return nil, errors.Wrapf(err, "delete discount %s", d.ID)
			}
		}
		return map[string]string{"catalog_discount_id": catalogDiscountID}, nil
	})
}

func getDiscount(ctx context.Context, st order.Store, orderID, discountID string) (*order.Discount, error) {
	discounts, err := st.ListDiscounts(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list discounts")
	}
	for _, d := range discounts {
		if d.ID == discountID {
			return d, nil
		}
	}
	return nil, errors.Wrapf(order.ErrDiscountNotFound, "discount %s", discountID)
}
