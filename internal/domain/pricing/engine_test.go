package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/order"
)

var (
	widget = catalog.ProductRef("widget")
	gadget = catalog.ProductRef("gadget")
	repair = catalog.ServiceRef("repair")
)

func TestRecalculate_CustomerTaxAndPercentageDiscount(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(
		[]discount.Discount{percentageRule("ten", "10")},
		mockTaxRepo{"hst": d("0.13"), "exempt": d("0")},
		mockCustomerRepo{"c1": "hst"},
	)

	o := newTestOrder()
	o.CustomerID = "c1"
	s := &fakeStore{
		order: o,
		lines: []*order.Line{newTestLine("l1", widget, "14.99", 2, 0, "exempt")},
	}

	got, err := e.Recalculate(ctx, s, o)
	require.NoError(t, err)

	assert.Equal(t, "29.98", got.Subtotal.StringFixed(2))
	assert.Equal(t, "3.00", got.DiscountTotal.StringFixed(2))
	assert.Equal(t, "3.90", got.TaxTotal.StringFixed(2))
	assert.Equal(t, "30.88", got.Total.StringFixed(2))

	require.Len(t, s.lines, 1)
	line := s.lines[0]
	assert.Equal(t, "hst", line.TaxCodeID)
	assert.Equal(t, "exempt", line.ProductTaxCodeID)
	assert.True(t, d("0.13").Equal(line.TaxRate))
	assert.Equal(t, "3.00", line.DiscountAmount.StringFixed(2))
	assert.Equal(t, "3.90", line.TaxAmount.StringFixed(2))
	assert.Equal(t, "30.88", line.LineTotal.StringFixed(2))

	require.Len(t, s.discounts, 1)
	od := s.discounts[0]
	assert.Equal(t, "ten", od.DiscountID)
	assert.Equal(t, order.DiscountPercentage, od.Type)
	assert.Equal(t, order.ScopeAllItems, od.Scope)
	assert.Equal(t, "3.00", od.CalculatedAmount.StringFixed(2))
	assert.Empty(t, od.AppliedBy)
}

func TestCalculateTotals_SumInvariants(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(
		[]discount.Discount{fixedRule("ten-off", "10")},
		mockTaxRepo{"std": d("0.05")},
		nil,
	)

	o := newTestOrder()
	s := &fakeStore{
		order: o,
		lines: []*order.Line{
			newTestLine("l3", repair, "5", 1, 2, "std"),
			newTestLine("l1", widget, "5", 1, 0, "std"),
			newTestLine("l2", gadget, "5", 1, 1, "std"),
		},
	}

	got, err := e.Recalculate(ctx, s, o)
	require.NoError(t, err)

	byID := map[string]*order.Line{}
	lineDiscounts := zero
	lineTaxes := zero
	for _, l := range s.lines {
		byID[l.ID] = l
		lineDiscounts = lineDiscounts.Add(l.DiscountAmount)
		lineTaxes = lineTaxes.Add(l.TaxAmount)

		want := l.Subtotal().Sub(l.DiscountAmount).Add(l.TaxAmount).Round(2)
		assert.True(t, want.Equal(l.LineTotal), "line %s total", l.ID)
	}

	// Last by position absorbs the remainder regardless of storage order.
	assert.Equal(t, "3.33", byID["l1"].DiscountAmount.StringFixed(2))
	assert.Equal(t, "3.33", byID["l2"].DiscountAmount.StringFixed(2))
	assert.Equal(t, "3.34", byID["l3"].DiscountAmount.StringFixed(2))

	assert.True(t, got.DiscountTotal.Equal(lineDiscounts))
	assert.True(t, got.TaxTotal.Equal(lineTaxes))
	assert.True(t, got.Total.Equal(got.Subtotal.Sub(got.DiscountTotal).Add(got.TaxTotal)))
	assert.Equal(t, "15.00", got.Subtotal.StringFixed(2))
	assert.Equal(t, "10.00", got.DiscountTotal.StringFixed(2))
	assert.Equal(t, "0.75", got.TaxTotal.StringFixed(2))
	assert.Equal(t, "5.75", got.Total.StringFixed(2))
}

func TestCalculateTotals_FixedDiscountCappedAtSubtotal(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine([]discount.Discount{fixedRule("fifty", "50")}, mockTaxRepo{}, nil)

	o := newTestOrder()
	s := &fakeStore{
		order: o,
		lines: []*order.Line{newTestLine("l1", widget, "10", 3, 0, "")},
	}

	got, err := e.Recalculate(ctx, s, o)
	require.NoError(t, err)

	assert.Equal(t, "30.00", got.DiscountTotal.StringFixed(2))
	assert.Equal(t, "0.00", got.Total.StringFixed(2))
	assert.Equal(t, "0.00", s.lines[0].LineTotal.StringFixed(2))
}

func TestCalculateTotals_UnknownTaxCodeIsZeroRate(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(nil, mockTaxRepo{}, mockCustomerRepo{})

	o := newTestOrder()
	o.CustomerID = "deleted-customer"
	s := &fakeStore{
		order: o,
		lines: []*order.Line{newTestLine("l1", widget, "12.50", 2, 0, "gone")},
	}

	got, err := e.CalculateTotals(ctx, s, o)
	require.NoError(t, err)

	assert.Equal(t, "gone", s.lines[0].TaxCodeID)
	assert.True(t, s.lines[0].TaxRate.IsZero())
	assert.Equal(t, "25.00", got.Total.StringFixed(2))
}

func TestCalculateTotals_Idempotent(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(
		[]discount.Discount{percentageRule("ten", "10"), fixedRule("two", "2", gadget)},
		mockTaxRepo{"std": d("0.13")},
		nil,
	)

	o := newTestOrder()
	s := &fakeStore{
		order: o,
		lines: []*order.Line{
			newTestLine("l1", widget, "14.99", 2, 0, "std"),
			newTestLine("l2", gadget, "3.33", 3, 1, "std"),
		},
	}

	first, err := e.Recalculate(ctx, s, o)
	require.NoError(t, err)
	snapshot := *first
	linesBefore, _ := s.ListLines(ctx, o.ID)

	s.resetCounters()
	second, err := e.CalculateTotals(ctx, s, o)
	require.NoError(t, err)

	assert.Zero(t, s.lineWrites, "no line should change")
	assert.Zero(t, s.discountWrites, "no discount should change")
	assert.Equal(t, 1, s.orderWrites)

	assert.True(t, snapshot.Subtotal.Equal(second.Subtotal))
	assert.True(t, snapshot.DiscountTotal.Equal(second.DiscountTotal))
	assert.True(t, snapshot.TaxTotal.Equal(second.TaxTotal))
	assert.True(t, snapshot.Total.Equal(second.Total))

	linesAfter, _ := s.ListLines(ctx, o.ID)
	require.Len(t, linesAfter, len(linesBefore))
	for i := range linesBefore {
		assert.True(t, linesBefore[i].LineTotal.Equal(linesAfter[i].LineTotal))
		assert.True(t, linesBefore[i].DiscountAmount.Equal(linesAfter[i].DiscountAmount))
	}
}

func TestCalculateTotals_NoDiscountsResetsLines(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(nil, mockTaxRepo{}, nil)

	o := newTestOrder()
	stale := newTestLine("l1", widget, "10", 1, 0, "")
	stale.DiscountAmount = d("4")
	stale.Reprice()
	s := &fakeStore{order: o, lines: []*order.Line{stale}}

	got, err := e.CalculateTotals(ctx, s, o)
	require.NoError(t, err)

	assert.True(t, s.lines[0].DiscountAmount.IsZero())
	assert.Equal(t, "10.00", s.lines[0].LineTotal.StringFixed(2))
	assert.True(t, got.DiscountTotal.IsZero())
}

func TestCalculateTotals_LineDiscountMirrorsOrderDiscount(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(nil, mockTaxRepo{}, nil)

	o := newTestOrder()
	s := &fakeStore{
		order: o,
		lines: []*order.Line{
			newTestLine("l1", widget, "20", 1, 0, ""),
			newTestLine("l2", gadget, "30", 1, 1, ""),
		},
		discounts: []*order.Discount{{
			ID: "manual", OrderID: "o1", Name: "damaged box",
			Type: order.DiscountPercentage, Value: d("10"),
			Scope: order.ScopeSpecificItems, LineIDs: []string{"l1"},
			CalculatedAmount: zero, AppliedBy: "cashier-1",
		}},
		lineDiscounts: []*order.LineDiscount{{
			ID: "ld1", OrderID: "o1", LineID: "l1", OrderDiscountID: "manual",
			Name: "damaged box", Type: order.DiscountPercentage, Value: d("10"),
			Amount: zero, AppliedBy: "cashier-1",
		}},
	}

	got, err := e.CalculateTotals(ctx, s, o)
	require.NoError(t, err)

	assert.Equal(t, "2.00", s.discounts[0].CalculatedAmount.StringFixed(2))
	assert.Equal(t, "2.00", s.lineDiscounts[0].Amount.StringFixed(2))
	assert.Equal(t, "2.00", got.DiscountTotal.StringFixed(2))
	// The order-level total is spread proportionally over all lines.
	assert.Equal(t, "0.80", s.lines[0].DiscountAmount.StringFixed(2))
	assert.Equal(t, "1.20", s.lines[1].DiscountAmount.StringFixed(2))
}

func TestCalculateTotals_RepeatedJoinCountsLineOnce(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(nil, mockTaxRepo{}, nil)

	o := newTestOrder()
	s := &fakeStore{
		order: o,
		lines: []*order.Line{newTestLine("l1", widget, "20", 1, 0, "")},
		discounts: []*order.Discount{{
			ID: "half", OrderID: "o1", Name: "half off",
			Type: order.DiscountPercentage, Value: d("50"),
			Scope: order.ScopeSpecificItems, LineIDs: []string{"l1", "l1"},
			CalculatedAmount: d("10.00"), AppliedBy: "cashier-1",
		}},
	}

	got, err := e.CalculateTotals(ctx, s, o)
	require.NoError(t, err)

	assert.Zero(t, s.discountWrites, "amount already matches a single-counted base")
	assert.Equal(t, "10.00", got.DiscountTotal.StringFixed(2))
	assert.Equal(t, "10.00", s.lines[0].DiscountAmount.StringFixed(2))
	assert.Equal(t, "10.00", got.Total.StringFixed(2))
}

func TestAutoApply_SkipsOverriddenDiscounts(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(
		[]discount.Discount{percentageRule("ten", "10"), fixedRule("five", "5")},
		mockTaxRepo{},
		nil,
	)

	o := newTestOrder()
	o.Override("ten")
	s := &fakeStore{
		order: o,
		lines: []*order.Line{newTestLine("l1", widget, "100", 1, 0, "")},
	}

	for range 3 {
		_, err := e.Recalculate(ctx, s, o)
		require.NoError(t, err)
		assert.Equal(t, []string{"five"}, s.catalogIDs())
	}
}

func TestAutoApply_KeepsOverriddenExistingDiscount(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine([]discount.Discount{percentageRule("ten", "10")}, mockTaxRepo{}, nil)

	o := newTestOrder()
	s := &fakeStore{
		order: o,
		lines: []*order.Line{newTestLine("l1", widget, "100", 1, 0, "")},
	}
	_, err := e.Recalculate(ctx, s, o)
	require.NoError(t, err)
	require.Len(t, s.discounts, 1)
	kept := s.discounts[0].ID

	// Overriding an already applied rule freezes the applied copy.
	o.Override("ten")
	_, err = e.Recalculate(ctx, s, o)
	require.NoError(t, err)

	require.Len(t, s.discounts, 1)
	assert.Equal(t, kept, s.discounts[0].ID)
}

func TestAutoApply_FinalizedOrderIsNoop(t *testing.T) {
	statuses := []order.Status{
		order.StatusCompleted,
		order.StatusCancelled,
		order.StatusRefunded,
		order.StatusPartiallyRefunded,
	}

	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			e := newTestEngine([]discount.Discount{percentageRule("ten", "10")}, mockTaxRepo{}, nil)

			o := newTestOrder()
			o.Status = status
			s := &fakeStore{
				order: o,
				lines: []*order.Line{newTestLine("l1", widget, "100", 1, 0, "")},
				discounts: []*order.Discount{{
					ID: "old", OrderID: "o1", Name: "old", Type: order.DiscountPercentage,
					Value: d("5"), Scope: order.ScopeAllItems, CalculatedAmount: d("5"), DiscountID: "retired",
				}},
			}

			require.NoError(t, e.AutoApply(context.Background(), s, o))
			assert.Zero(t, s.deletes)
			assert.Zero(t, s.discountWrites)
			assert.Equal(t, []string{"retired"}, s.catalogIDs())
		})
	}
}

func TestAutoApply_ReevaluationIsStable(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(
		[]discount.Discount{percentageRule("ten", "10"), fixedRule("gadget-2", "2", gadget)},
		mockTaxRepo{},
		nil,
	)

	o := newTestOrder()
	s := &fakeStore{
		order: o,
		lines: []*order.Line{
			newTestLine("l1", widget, "10", 1, 0, ""),
			newTestLine("l2", gadget, "10", 1, 1, ""),
		},
	}

	require.NoError(t, e.AutoApply(ctx, s, o))
	first := s.catalogIDs()
	require.NoError(t, e.AutoApply(ctx, s, o))

	assert.Equal(t, first, s.catalogIDs())
	assert.Len(t, s.discounts, 2)
}

func TestAutoApply_SpecificItems(t *testing.T) {
	ctx := context.Background()
	rules := []discount.Discount{
		percentageRule("services", "20", repair),
		fixedRule("widgets", "1", widget, catalog.ServiceRef("widget")),
	}
	e := newTestEngine(rules, mockTaxRepo{}, nil)

	o := newTestOrder()
	s := &fakeStore{
		order: o,
		lines: []*order.Line{
			newTestLine("l1", widget, "10", 1, 0, ""),
			newTestLine("l2", gadget, "10", 1, 1, ""),
			newTestLine("l3", widget, "10", 2, 2, ""),
		},
	}

	require.NoError(t, e.AutoApply(ctx, s, o))

	// No repair line on the order: the services rule is skipped.
	require.Len(t, s.discounts, 1)
	od := s.discounts[0]
	assert.Equal(t, "widgets", od.DiscountID)
	assert.Equal(t, order.ScopeSpecificItems, od.Scope)
	assert.Equal(t, order.DiscountFixedAmount, od.Type)
	assert.Equal(t, []string{"l1", "l3"}, od.LineIDs)
	assert.Equal(t, "od-1", od.ID)
}

func TestAutoApply_EmptyOrderGetsNoDiscounts(t *testing.T) {
	e := newTestEngine([]discount.Discount{percentageRule("ten", "10")}, mockTaxRepo{}, nil)
	o := newTestOrder()
	s := &fakeStore{order: o}

	require.NoError(t, e.AutoApply(context.Background(), s, o))
	assert.Empty(t, s.discounts)
}

func TestAutoApply_InactiveRulesIgnored(t *testing.T) {
	past := fixedNow.Add(-48 * time.Hour)
	yesterday := fixedNow.Add(-24 * time.Hour)
	tomorrow := fixedNow.Add(24 * time.Hour)

	expired := percentageRule("expired", "10")
	expired.StartsAt, expired.EndsAt = &past, &yesterday
	future := percentageRule("future", "10")
	future.StartsAt = &tomorrow
	off := percentageRule("off", "10")
	off.Active = false
	current := percentageRule("current", "10")
	current.StartsAt, current.EndsAt = &yesterday, &tomorrow

	e := newTestEngine([]discount.Discount{expired, future, off, current}, mockTaxRepo{}, nil)
	o := newTestOrder()
	s := &fakeStore{
		order: o,
		lines: []*order.Line{newTestLine("l1", widget, "10", 1, 0, "")},
	}

	require.NoError(t, e.AutoApply(context.Background(), s, o))
	assert.Equal(t, []string{"current"}, s.catalogIDs())
}

func TestAutoApply_ManualDiscountsPersist(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine([]discount.Discount{percentageRule("ten", "10")}, mockTaxRepo{}, nil)

	o := newTestOrder()
	manual := &order.Discount{
		ID: "manual", OrderID: "o1", Name: "loyalty", Type: order.DiscountFixedAmount,
		Value: d("1"), Scope: order.ScopeAllItems, CalculatedAmount: zero, AppliedBy: "cashier-1",
	}
	s := &fakeStore{
		order:     o,
		lines:     []*order.Line{newTestLine("l1", widget, "10", 1, 0, "")},
		discounts: []*order.Discount{manual},
	}

	for range 2 {
		_, err := e.Recalculate(ctx, s, o)
		require.NoError(t, err)
	}

	require.Len(t, s.discounts, 2)
	assert.Equal(t, "manual", s.discounts[0].ID)
	assert.Equal(t, "2.00", o.DiscountTotal.StringFixed(2))
}

func TestRecalculate_PropagatesErrors(t *testing.T) {
	errBoom := errors.New("boom")

	t.Run("create discount", func(t *testing.T) {
		e := newTestEngine([]discount.Discount{percentageRule("ten", "10")}, mockTaxRepo{}, nil)
		o := newTestOrder()
		s := &fakeStore{
			order:             o,
			lines:             []*order.Line{newTestLine("l1", widget, "10", 1, 0, "")},
			createDiscountErr: errBoom,
		}

		_, err := e.Recalculate(context.Background(), s, o)
		require.ErrorIs(t, err, errBoom)
		assert.Zero(t, s.orderWrites)
	})

	t.Run("list active rules", func(t *testing.T) {
		e, err := NewEngine(&mockDiscountRepo{err: errBoom}, mockTaxRepo{}, mockCustomerRepo{})
		require.NoError(t, err)
		o := newTestOrder()

		_, err = e.Recalculate(context.Background(), &fakeStore{order: o}, o)
		require.ErrorIs(t, err, errBoom)
	})
}
