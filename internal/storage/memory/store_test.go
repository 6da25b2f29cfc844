package memory

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-pricing/internal/domain/auth"
	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/order"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newLine(id string, position int) *order.Line {
	return order.NewLine(id, "o1", catalog.Snapshot{
		Ref:       catalog.ProductRef("p-" + id),
		Name:      "item " + id,
		UnitPrice: decimal.NewFromInt(10),
	}, 1, position)
}

func seedOrder(t *testing.T, db *DB, lines ...*order.Line) {
	t.Helper()
	err := db.WithinTx(context.Background(), func(ctx context.Context, s order.Store) error {
		if err := s.CreateOrder(ctx, order.New("o1", now)); err != nil {
			return err
		}
		for _, l := range lines {
			if err := s.CreateLine(ctx, l); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestDB_RollbackRestoresTouchedOrders(t *testing.T) {
	ctx := context.Background()
	db := NewDB(NewCatalog())
	seedOrder(t, db, newLine("l1", 0))

	errAbort := errors.New("abort")
	err := db.WithinTx(ctx, func(ctx context.Context, s order.Store) error {
		if err := s.CreateLine(ctx, newLine("l2", 1)); err != nil {
			return err
		}
		o, err := s.GetOrder(ctx, "o1")
		if err != nil {
			return err
		}
		o.Override("rule-1")
		if err := s.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := s.CreateOrder(ctx, order.New("o2", now)); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	err = db.WithinTx(ctx, func(ctx context.Context, s order.Store) error {
		lines, err := s.ListLines(ctx, "o1")
		require.NoError(t, err)
		assert.Len(t, lines, 1)

		o, err := s.GetOrder(ctx, "o1")
		require.NoError(t, err)
		assert.Empty(t, o.Overrides)

		_, err = s.GetOrder(ctx, "o2")
		assert.ErrorIs(t, err, order.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestDB_RollbackRevertsStock(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()
	c.PutProduct(catalog.Product{ID: "p1", Name: "Widget", Price: decimal.NewFromInt(5), Stock: 10})
	db := NewDB(c)

	err := db.WithinTx(ctx, func(ctx context.Context, s order.Store) error {
		require.NoError(t, s.AdjustStock(ctx, "p1", -3))
		require.NoError(t, s.AdjustStock(ctx, "p1", -2))
		return errors.New("payment declined")
	})
	require.Error(t, err)

	p, ok := c.Product("p1")
	require.True(t, ok)
	assert.Equal(t, 10, p.Stock)

	err = db.WithinTx(ctx, func(ctx context.Context, s order.Store) error {
		return s.AdjustStock(ctx, "missing", 1)
	})
	assert.ErrorIs(t, err, catalog.ErrSellableNotFound)
}

func TestDB_ListLinesSortedByPosition(t *testing.T) {
	db := NewDB(NewCatalog())
	seedOrder(t, db, newLine("b", 2), newLine("a", 1), newLine("c", 0))

	err := db.WithinTx(context.Background(), func(ctx context.Context, s order.Store) error {
		lines, err := s.ListLines(ctx, "o1")
		require.NoError(t, err)
		ids := make([]string, len(lines))
		for i, l := range lines {
			ids[i] = l.ID
		}
		assert.Equal(t, []string{"c", "a", "b"}, ids)
		return nil
	})
	require.NoError(t, err)
}

func TestDB_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := NewDB(NewCatalog())
	seedOrder(t, db, newLine("l1", 0), newLine("l2", 1))

	err := db.WithinTx(ctx, func(ctx context.Context, s order.Store) error {
		require.NoError(t, s.CreateDiscount(ctx, &order.Discount{
			ID: "d1", OrderID: "o1", Name: "two lines", Type: order.DiscountPercentage,
			Value: decimal.NewFromInt(10), Scope: order.ScopeSpecificItems, LineIDs: []string{"l1", "l2"},
		}))
		require.NoError(t, s.CreateDiscount(ctx, &order.Discount{
			ID: "d2", OrderID: "o1", Name: "line l2", Type: order.DiscountFixedAmount,
			Value: decimal.NewFromInt(1), Scope: order.ScopeSpecificItems, LineIDs: []string{"l2"},
		}))
		require.NoError(t, s.CreateLineDiscount(ctx, &order.LineDiscount{
			ID: "ld1", OrderID: "o1", LineID: "l2", OrderDiscountID: "d2",
			Name: "line l2", Type: order.DiscountFixedAmount, Value: decimal.NewFromInt(1),
		}))

		require.NoError(t, s.DeleteLine(ctx, "o1", "l2"))

		discounts, err := s.ListDiscounts(ctx, "o1")
		require.NoError(t, err)
		require.Len(t, discounts, 2)
		assert.Equal(t, []string{"l1"}, discounts[0].LineIDs)
		assert.Empty(t, discounts[1].LineIDs)

		lds, err := s.ListLineDiscounts(ctx, "o1")
		require.NoError(t, err)
		assert.Empty(t, lds)

		require.NoError(t, s.DeleteDiscount(ctx, "o1", "d1"))
		assert.ErrorIs(t, s.DeleteDiscount(ctx, "o1", "d1"), order.ErrDiscountNotFound)
		assert.ErrorIs(t, s.DeleteLine(ctx, "o1", "l2"), order.ErrLineNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestDB_ValidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	db := NewDB(NewCatalog())
	seedOrder(t, db, newLine("l1", 0))

	tests := []struct {
		name  string
		write func(s order.Store) error
		field string
	}{
		{
			name: "zero quantity line",
			write: func(s order.Store) error {
				l := newLine("l2", 1)
				l.Quantity = 0
				return s.CreateLine(ctx, l)
			},
			field: "quantity",
		},
		{
			name: "percentage above 100",
			write: func(s order.Store) error {
				return s.CreateDiscount(ctx, &order.Discount{
					ID: "d1", OrderID: "o1", Name: "too much", Type: order.DiscountPercentage,
					Value: decimal.NewFromInt(101), Scope: order.ScopeAllItems,
				})
			},
			field: "value",
		},
		{
			name: "unknown discount type",
			write: func(s order.Store) error {
				return s.CreateDiscount(ctx, &order.Discount{
					ID: "d1", OrderID: "o1", Name: "bogo", Type: "buy_one_get_one",
					Value: decimal.NewFromInt(1), Scope: order.ScopeAllItems,
				})
			},
			field: "discount_type",
		},
		{
			name: "zero payment",
			write: func(s order.Store) error {
				return s.CreatePayment(ctx, &order.Payment{ID: "p1", OrderID: "o1", Method: order.PaymentCash})
			},
			field: "amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.WithinTx(ctx, func(_ context.Context, s order.Store) error {
				return tt.write(s)
			})
			var verr *order.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestDB_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewDB(NewCatalog()).WithinTx(ctx, func(context.Context, order.Store) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestDB_Events(t *testing.T) {
	ctx := context.Background()
	db := NewDB(NewCatalog())
	seedOrder(t, db)

	err := db.WithinTx(ctx, func(ctx context.Context, s order.Store) error {
		return s.AppendEvent(ctx, &order.Event{
			ID: "e1", OrderID: "o1", Type: order.EventCreated, Actor: "till-1",
			Data: map[string]string{"customer_id": ""}, CreatedAt: now,
		})
	})
	require.NoError(t, err)

	events := db.Events("o1")
	require.Len(t, events, 1)
	assert.Equal(t, order.EventCreated, events[0].Type)
	assert.Equal(t, "till-1", events[0].Actor)
	assert.Nil(t, db.Events("missing"))
}

func TestCatalog_ListActive(t *testing.T) {
	c := NewCatalog()
	yesterday := now.Add(-24 * time.Hour)

	rules := []discount.Discount{
		{ID: "b", Name: "B", Type: discount.TypePercentage, Value: decimal.NewFromInt(5), Active: true, AppliesToAll: true},
		{ID: "a", Name: "A", Type: discount.TypeFixedTotal, Value: decimal.NewFromInt(1), Active: true, AppliesToAll: true},
		{ID: "old", Name: "Old", Type: discount.TypeFixedTotal, Value: decimal.NewFromInt(1), Active: true, EndsAt: &yesterday},
		{ID: "off", Name: "Off", Type: discount.TypeFixedTotal, Value: decimal.NewFromInt(1)},
	}
	for _, r := range rules {
		require.NoError(t, c.PutDiscount(r))
	}
	// Replacing keeps the catalog position.
	updated := rules[0]
	updated.Value = decimal.NewFromInt(7)
	require.NoError(t, c.PutDiscount(updated))

	active, err := c.ListActive(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "b", active[0].ID)
	assert.True(t, decimal.NewFromInt(7).Equal(active[0].Value))
	assert.Equal(t, "a", active[1].ID)

	assert.Error(t, c.PutDiscount(discount.Discount{ID: "bad", Name: "Bad", Type: "bogus"}))
}

func TestCatalog_Lookups(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()
	c.PutProduct(catalog.Product{ID: "x", Name: "Product X"})
	c.PutService(catalog.Service{ID: "x", Name: "Service X"})
	c.PutTaxCode(catalog.TaxCode{ID: "hst", Rate: decimal.RequireFromString("0.13")})
	c.PutCustomer(catalog.Customer{ID: "c1", TaxCodeID: "hst"})
	c.PutAPIKey(auth.APIKeyInfo{ID: "k1", KeyHash: "abc", Name: "till", Scopes: []string{auth.ScopeOrdersRead}})

	p, err := c.GetSellable(ctx, catalog.ProductRef("x"))
	require.NoError(t, err)
	assert.Equal(t, "Product X", p.Label())

	s, err := c.GetSellable(ctx, catalog.ServiceRef("x"))
	require.NoError(t, err)
	assert.Equal(t, "Service X", s.Label())

	_, err = c.GetSellable(ctx, catalog.ServiceRef("y"))
	assert.ErrorIs(t, err, catalog.ErrSellableNotFound)

	tc, err := c.GetTaxCode(ctx, "hst")
	require.NoError(t, err)
	assert.Equal(t, "0.13", tc.Rate.String())
	_, err = c.GetTaxCode(ctx, "gst")
	assert.ErrorIs(t, err, catalog.ErrTaxCodeNotFound)

	cu, err := c.GetCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "hst", cu.TaxCodeID)
	_, err = c.GetCustomer(ctx, "c2")
	assert.ErrorIs(t, err, catalog.ErrCustomerNotFound)

	key, err := c.FindByHash(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, key.HasScope(auth.ScopeOrdersRead))
	assert.False(t, key.HasScope(auth.ScopeOrdersWrite))
	_, err = c.FindByHash(ctx, "def")
	assert.ErrorIs(t, err, auth.ErrKeyNotFound)
}
