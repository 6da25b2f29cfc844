package pricing

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/order"
)

// --- Mock implementations ---

// fakeStore hands out copies so that only explicit writes change state.
type fakeStore struct {
	order         *order.Order
	lines         []*order.Line
	discounts     []*order.Discount
	lineDiscounts []*order.LineDiscount

	lineWrites     int
	discountWrites int
	orderWrites    int
	deletes        int

	createDiscountErr error
}

func (s *fakeStore) UpdateOrder(_ context.Context, o *order.Order) error {
	c := *o
	c.Overrides = o.Overrides.Clone()
	s.order = &c
	s.orderWrites++
	return nil
}

func (s *fakeStore) ListLines(_ context.Context, _ string) ([]*order.Line, error) {
	out := make([]*order.Line, len(s.lines))
	for i, l := range s.lines {
		c := *l
		out[i] = &c
	}
	return out, nil
}

func (s *fakeStore) UpdateLine(_ context.Context, l *order.Line) error {
	if err := l.Validate(); err != nil {
		return err
	}
	for i, existing := range s.lines {
		if existing.ID == l.ID {
			c := *l
			s.lines[i] = &c
			s.lineWrites++
			return nil
		}
	}
	return order.ErrLineNotFound
}

func (s *fakeStore) ListDiscounts(_ context.Context, _ string) ([]*order.Discount, error) {
	out := make([]*order.Discount, len(s.discounts))
	for i, d := range s.discounts {
		c := *d
		c.LineIDs = slices.Clone(d.LineIDs)
		out[i] = &c
	}
	return out, nil
}

func (s *fakeStore) CreateDiscount(_ context.Context, d *order.Discount) error {
	if s.createDiscountErr != nil {
		return s.createDiscountErr
	}
	if err := d.Validate(); err != nil {
		return err
	}
	c := *d
	c.LineIDs = slices.Clone(d.LineIDs)
	s.discounts = append(s.discounts, &c)
	s.discountWrites++
	return nil
}

func (s *fakeStore) UpdateDiscount(_ context.Context, d *order.Discount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	for i, existing := range s.discounts {
		if existing.ID == d.ID {
			c := *d
			c.LineIDs = slices.Clone(d.LineIDs)
			s.discounts[i] = &c
			s.discountWrites++
			return nil
		}
	}
	return order.ErrDiscountNotFound
}

func (s *fakeStore) DeleteDiscount(_ context.Context, _ string, id string) error {
	s.discounts = slices.DeleteFunc(s.discounts, func(d *order.Discount) bool { return d.ID == id })
	s.lineDiscounts = slices.DeleteFunc(s.lineDiscounts, func(d *order.LineDiscount) bool { return d.OrderDiscountID == id })
	s.deletes++
	return nil
}

func (s *fakeStore) ListLineDiscounts(_ context.Context, _ string) ([]*order.LineDiscount, error) {
	out := make([]*order.LineDiscount, len(s.lineDiscounts))
	for i, d := range s.lineDiscounts {
		c := *d
		out[i] = &c
	}
	return out, nil
}

func (s *fakeStore) UpdateLineDiscount(_ context.Context, d *order.LineDiscount) error {
	for i, existing := range s.lineDiscounts {
		if existing.ID == d.ID {
			c := *d
			s.lineDiscounts[i] = &c
			return nil
		}
	}
	return order.ErrLineDiscountNotFound
}

func (s *fakeStore) catalogIDs() []string {
	var ids []string
	for _, d := range s.discounts {
		if d.AutoApplied() {
			ids = append(ids, d.DiscountID)
		}
	}
	return ids
}

func (s *fakeStore) resetCounters() {
	s.lineWrites, s.discountWrites, s.orderWrites, s.deletes = 0, 0, 0, 0
}

type mockDiscountRepo struct {
	rules []discount.Discount
	err   error
}

func (m *mockDiscountRepo) ListActive(_ context.Context, now time.Time) ([]discount.Discount, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []discount.Discount
	for _, r := range m.rules {
		if r.ActiveAt(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockTaxRepo map[string]decimal.Decimal

func (m mockTaxRepo) GetTaxCode(_ context.Context, id string) (*catalog.TaxCode, error) {
	rate, ok := m[id]
	if !ok {
		return nil, catalog.ErrTaxCodeNotFound
	}
	return &catalog.TaxCode{ID: id, Name: id, Rate: rate}, nil
}

type mockCustomerRepo map[string]string

func (m mockCustomerRepo) GetCustomer(_ context.Context, id string) (*catalog.Customer, error) {
	taxCode, ok := m[id]
	if !ok {
		return nil, catalog.ErrCustomerNotFound
	}
	return &catalog.Customer{ID: id, Name: id, TaxCodeID: taxCode}, nil
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(rules []discount.Discount, taxes mockTaxRepo, customers mockCustomerRepo) *Engine {
	seq := 0
	e, err := NewEngine(&mockDiscountRepo{rules: rules}, taxes, customers,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("od-%d", seq)
		}),
	)
	if err != nil {
		panic(err)
	}
	return e
}

func newTestOrder() *order.Order {
	return order.New("o1", fixedNow)
}

func newTestLine(id string, ref catalog.SellableRef, price string, qty, position int, taxCode string) *order.Line {
	return order.NewLine(id, "o1", catalog.Snapshot{
		Ref:       ref,
		Name:      "item " + id,
		Code:      "SKU-" + id,
		UnitPrice: d(price),
		TaxCodeID: taxCode,
	}, qty, position)
}

func percentageRule(id, value string, items ...catalog.SellableRef) discount.Discount {
	return discount.Discount{
		ID: id, Name: "rule " + id, Type: discount.TypePercentage, Value: d(value),
		Active: true, AppliesToAll: len(items) == 0, Items: items,
	}
}

func fixedRule(id, value string, items ...catalog.SellableRef) discount.Discount {
	return discount.Discount{
		ID: id, Name: "rule " + id, Type: discount.TypeFixedTotal, Value: d(value),
		Active: true, AppliesToAll: len(items) == 0, Items: items,
	}
}
