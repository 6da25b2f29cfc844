package pricing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/order"
)

// AutoApply re-derives the catalog discounts applied to o.
//
// Every auto-applied discount whose catalog ID is not overridden is deleted
// and the currently active rules are matched against the reloaded lines, one
// order discount per matching rule, in catalog order. Manual discounts and
// overridden catalog IDs are left untouched. Finalized orders are ignored.
func (e *Engine) AutoApply(ctx context.Context, s Store, o *order.Order) error {
	if o.Finalized() {
		return nil
	}

	existing, err := s.ListDiscounts(ctx, o.ID)
	if err != nil {
		return errors.Wrap(err, "list order discounts")
	}
	removed := 0
	for _, d := range existing {
		if !d.AutoApplied() || o.Overrides.Has(d.DiscountID) {
			continue
		}
		if err := s.DeleteDiscount(ctx, o.ID, d.ID); err != nil {
			return errors.Wrapf(err, "delete auto-applied discount %s", d.ID)
		}
		removed++
	}

	// Reload: callers may have removed a line just before calling.
	lines, err := s.ListLines(ctx, o.ID)
	if err != nil {
		return errors.Wrap(err, "list lines")
	}
	order.SortLines(lines)

	rules, err := e.discounts.ListActive(ctx, e.now())
	if err != nil {
		return errors.Wrap(err, "list active discounts")
	}

	applied := 0
	for _, rule := range rules {
		if o.Overrides.Has(rule.ID) {
			continue
		}
		matched := matchLines(rule, lines)
		if len(matched) == 0 {
			continue
		}

		od := &order.Discount{
			ID:               e.newID(),
			OrderID:          o.ID,
			Name:             rule.Name,
			Type:             typeTranslation[rule.Type],
			Value:            rule.Value,
			Scope:            order.ScopeAllItems,
			CalculatedAmount: zero,
			DiscountID:       rule.ID,
		}
		if !rule.AppliesToAll {
			od.Scope = order.ScopeSpecificItems
			od.LineIDs = make([]string, len(matched))
			for i, l := range matched {
				od.LineIDs[i] = l.ID
			}
		}
		if err := s.CreateDiscount(ctx, od); err != nil {
			return errors.Wrapf(err, "apply discount %s", rule.ID)
		}
		applied++
	}

	e.autoApplied.Add(ctx, int64(applied))
	zctx.From(ctx).Debug("Discounts auto-applied",
		zap.String("order_id", o.ID),
		zap.Int("removed", removed),
		zap.Int("applied", applied),
		zap.Int("overridden", len(o.Overrides)),
	)
	return nil
}

// matchLines returns the lines a rule applies to: all of them for
// applies-to-all rules, otherwise those whose sellable is targeted.
func matchLines(rule discount.Discount, lines []*order.Line) []*order.Line {
	if rule.AppliesToAll {
		return lines
	}
	var matched []*order.Line
	for _, l := range lines {
		if rule.Targets(l.Sellable) {
			matched = append(matched, l)
		}
	}
	return matched
}
