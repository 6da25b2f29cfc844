//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/auth"
	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/order"
	"github.com/xenking/pos-pricing/internal/repository"
)

func TestTransactor_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	tx := repository.NewTransactor(pool)
	id := uuid.NewString()
	boom := errors.New("boom")

	err := tx.WithinTx(ctx, func(ctx context.Context, s order.Store) error {
		if err := s.CreateOrder(ctx, order.New(id, time.Now().UTC())); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx: got %v, want boom", err)
	}

	err = tx.WithinTx(ctx, func(ctx context.Context, s order.Store) error {
		_, err := s.GetOrder(ctx, id)
		return err
	})
	if !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("GetOrder after rollback: got %v, want ErrNotFound", err)
	}
}

func TestTransactor_PersistsOverrides(t *testing.T) {
	ctx := context.Background()
	tx := repository.NewTransactor(pool)
	id := uuid.NewString()

	if err := tx.WithinTx(ctx, func(ctx context.Context, s order.Store) error {
		o := order.New(id, time.Now().UTC())
		o.Override("widget-10")
		o.Override("install-5")
		return s.CreateOrder(ctx, o)
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := tx.WithinTx(ctx, func(ctx context.Context, s order.Store) error {
		o, err := s.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if !o.Overrides.Has("widget-10") || !o.Overrides.Has("install-5") || len(o.Overrides) != 2 {
			t.Errorf("overrides: got %v", o.Overrides.IDs())
		}
		return nil
	}); err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestCatalog_ListActiveWindow(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	id := "window-" + uuid.NewString()

	if err := catalogDB.UpsertDiscount(ctx, discount.Discount{
		ID:       id,
		Name:     "New year",
		Type:     discount.TypePercentage,
		Value:    decimal.NewFromInt(20),
		Active:   true,
		StartsAt: &start,
		EndsAt:   &end,
		Items:    []catalog.SellableRef{catalog.ProductRef("widget"), catalog.ServiceRef("install")},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	find := func(at time.Time) *discount.Discount {
		t.Helper()
		active, err := catalogDB.ListActive(ctx, at)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, d := range active {
			if d.ID == id {
				return &d
			}
		}
		return nil
	}

	if find(start.Add(-time.Minute)) != nil {
		t.Error("rule listed before its window")
	}
	if find(end.Add(time.Minute)) != nil {
		t.Error("rule listed after its window")
	}
	d := find(start.Add(time.Hour))
	if d == nil {
		t.Fatal("rule not listed inside its window")
	}
	if len(d.Items) != 2 || !d.Targets(catalog.ServiceRef("install")) {
		t.Errorf("items: got %v", d.Items)
	}
}

func TestCatalog_NotFound(t *testing.T) {
	ctx := context.Background()

	if _, err := catalogDB.GetSellable(ctx, catalog.ServiceRef("widget")); !errors.Is(err, catalog.ErrSellableNotFound) {
		t.Errorf("product id as service: got %v, want ErrSellableNotFound", err)
	}
	if _, err := catalogDB.GetTaxCode(ctx, "nope"); !errors.Is(err, catalog.ErrTaxCodeNotFound) {
		t.Errorf("tax code: got %v, want ErrTaxCodeNotFound", err)
	}
	if _, err := catalogDB.GetCustomer(ctx, "nope"); !errors.Is(err, catalog.ErrCustomerNotFound) {
		t.Errorf("customer: got %v, want ErrCustomerNotFound", err)
	}
	if _, err := repository.NewAPIKeyRepository(pool).FindByHash(ctx, auth.HashKey("nope", testPepper)); !errors.Is(err, auth.ErrKeyNotFound) {
		t.Errorf("api key: got %v, want ErrKeyNotFound", err)
	}
}
