package pricing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/order"
)

// CalculateTotals recomputes every derived monetary field of o from its
// current lines and discounts, persists what changed and returns o.
//
// Steps, in order: per-line tax rate resolution, per-discount amounts,
// distribution of the discount total across lines, order aggregates.
// Recomputing an unchanged order yields the same values.
func (e *Engine) CalculateTotals(ctx context.Context, s Store, o *order.Order) (*order.Order, error) {
	lines, err := s.ListLines(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list lines")
	}
	order.SortLines(lines)

	if err := e.resolveTaxRates(ctx, s, o, lines); err != nil {
		return nil, errors.Wrap(err, "resolve tax rates")
	}

	discounts, err := s.ListDiscounts(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list order discounts")
	}
	if err := priceDiscounts(ctx, s, o.ID, discounts, lines); err != nil {
		return nil, errors.Wrap(err, "price discounts")
	}

	discountTotal := zero
	for _, d := range discounts {
		discountTotal = discountTotal.Add(d.CalculatedAmount)
	}
	if err := distributeDiscount(ctx, s, discountTotal, lines); err != nil {
		return nil, errors.Wrap(err, "distribute discount")
	}

	subtotal, taxTotal := zero, zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Subtotal())
		taxTotal = taxTotal.Add(l.TaxAmount)
	}
	o.Subtotal = subtotal.Round(2)
	o.DiscountTotal = discountTotal.Round(2)
	o.TaxTotal = taxTotal.Round(2)
	o.Total = o.Subtotal.Sub(o.DiscountTotal).Add(o.TaxTotal).Round(2)

	if err := s.UpdateOrder(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update order")
	}

	zctx.From(ctx).Debug("Order totals calculated",
		zap.String("order_id", o.ID),
		zap.Int("lines", len(lines)),
		zap.Int("discounts", len(discounts)),
		zap.Stringer("subtotal", o.Subtotal),
		zap.Stringer("discount_total", o.DiscountTotal),
		zap.Stringer("tax_total", o.TaxTotal),
		zap.Stringer("total", o.Total),
	)
	return o, nil
}

// resolveTaxRates applies the effective tax code to every line. A customer
// tax code wins over the line's own code and replaces it on the line.
func (e *Engine) resolveTaxRates(ctx context.Context, s Store, o *order.Order, lines []*order.Line) error {
	customerTaxCode, err := e.customerTaxCode(ctx, o.CustomerID)
	if err != nil {
		return err
	}

	rates := make(map[string]decimal.Decimal)
	for _, l := range lines {
		code := l.TaxCodeID
		if customerTaxCode != "" {
			code = customerTaxCode
		}
		rate, err := e.taxRate(ctx, rates, code)
		if err != nil {
			return err
		}

		changed := false
		if !l.TaxRate.Equal(rate) {
			l.TaxRate = rate
			changed = true
		}
		if customerTaxCode != "" && l.TaxCodeID != customerTaxCode {
			l.TaxCodeID = customerTaxCode
			changed = true
		}
		if !changed {
			continue
		}

		l.Reprice()
		if err := s.UpdateLine(ctx, l); err != nil {
			return errors.Wrapf(err, "update line %s", l.ID)
		}
	}
	return nil
}

func (e *Engine) customerTaxCode(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", nil
	}
	c, err := e.customers.GetCustomer(ctx, customerID)
	switch {
	case errors.Is(err, catalog.ErrCustomerNotFound):
		return "", nil
	case err != nil:
		return "", errors.Wrapf(err, "get customer %s", customerID)
	}
	return c.TaxCodeID, nil
}

// taxRate resolves a tax code to its rate, memoizing lookups in cache. An
// empty or unknown code has a zero rate.
func (e *Engine) taxRate(ctx context.Context, cache map[string]decimal.Decimal, code string) (decimal.Decimal, error) {
	if code == "" {
		return zero, nil
	}
	if rate, ok := cache[code]; ok {
		return rate, nil
	}

	rate := zero
	tc, err := e.taxes.GetTaxCode(ctx, code)
	switch {
	case errors.Is(err, catalog.ErrTaxCodeNotFound):
	case err != nil:
		return zero, errors.Wrapf(err, "get tax code %s", code)
	default:
		rate = tc.Rate
	}
	cache[code] = rate
	return rate, nil
}

// priceDiscounts computes each discount's amount against the subtotal of
// the lines in its scope and refreshes linked line discounts.
func priceDiscounts(ctx context.Context, s Store, orderID string, discounts []*order.Discount, lines []*order.Line) error {
	if len(discounts) == 0 {
		return nil
	}

	byID := make(map[string]*order.Line, len(lines))
	for _, l := range lines {
		byID[l.ID] = l
	}

	amounts := make(map[string]decimal.Decimal, len(discounts))
	for _, d := range discounts {
		applicable := zero
		switch d.Scope {
		case order.ScopeAllItems:
			for _, l := range lines {
				applicable = applicable.Add(l.Subtotal())
			}
		default:
			joined := make(map[string]struct{}, len(d.LineIDs))
			for _, id := range d.LineIDs {
				joined[id] = struct{}{}
			}
			for id := range joined {
				if l, ok := byID[id]; ok {
					applicable = applicable.Add(l.Subtotal())
				}
			}
		}

		amount := DiscountAmount(d.Type, d.Value, applicable)
		amounts[d.ID] = amount
		if amount.Equal(d.CalculatedAmount) {
			continue
		}
		d.CalculatedAmount = amount
		if err := s.UpdateDiscount(ctx, d); err != nil {
			return errors.Wrapf(err, "update discount %s", d.ID)
		}
	}

	lineDiscounts, err := s.ListLineDiscounts(ctx, orderID)
	if err != nil {
		return errors.Wrap(err, "list line discounts")
	}
	for _, ld := range lineDiscounts {
		amount, ok := amounts[ld.OrderDiscountID]
		if !ok || amount.Equal(ld.Amount) {
			continue
		}
		ld.Amount = amount
		if err := s.UpdateLineDiscount(ctx, ld); err != nil {
			return errors.Wrapf(err, "update line discount %s", ld.ID)
		}
	}
	return nil
}

// distributeDiscount writes each line's share of total. Lines must be in
// position order: the last one absorbs the rounding remainder.
func distributeDiscount(ctx context.Context, s Store, total decimal.Decimal, lines []*order.Line) error {
	if len(lines) == 0 {
		return nil
	}

	subtotals := make([]decimal.Decimal, len(lines))
	for i, l := range lines {
		subtotals[i] = l.Subtotal()
	}
	shares := Distribute(total, subtotals)

	for i, l := range lines {
		if l.DiscountAmount.Equal(shares[i]) {
			continue
		}
		l.DiscountAmount = shares[i]
		l.Reprice()
		if err := s.UpdateLine(ctx, l); err != nil {
			return errors.Wrapf(err, "update line %s", l.ID)
		}
	}
	return nil
}
