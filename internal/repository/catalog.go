package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/discount"
)

const (
	getProductSQL  = `SELECT id, name, code, price, tax_code_id, stock FROM products WHERE id = $1`
	getServiceSQL  = `SELECT id, name, code, price, tax_code_id FROM services WHERE id = $1`
	getTaxCodeSQL  = `SELECT id, name, rate FROM tax_codes WHERE id = $1`
	getCustomerSQL = `SELECT id, name, tax_code_id FROM customers WHERE id = $1`

	listActiveDiscountsSQL = `SELECT d.id, d.name, d.discount_type, d.value, d.active, d.applies_to_all,
		d.starts_at, d.ends_at,
		COALESCE(array_agg(i.sellable_kind || ':' || i.sellable_id ORDER BY i.sellable_kind, i.sellable_id)
			FILTER (WHERE i.discount_id IS NOT NULL), '{}')
		FROM discounts d
		LEFT JOIN discount_items i ON i.discount_id = d.id
		WHERE d.active
			AND (d.starts_at IS NULL OR d.starts_at <= $1)
			AND (d.ends_at IS NULL OR d.ends_at >= $1)
		GROUP BY d.seq, d.id
		ORDER BY d.seq`

	upsertTaxCodeSQL = `INSERT INTO tax_codes (id, name, rate) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, rate = EXCLUDED.rate`

	upsertProductSQL = `INSERT INTO products (id, name, code, price, tax_code_id, stock)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, code = EXCLUDED.code,
			price = EXCLUDED.price, tax_code_id = EXCLUDED.tax_code_id, stock = EXCLUDED.stock`

	upsertServiceSQL = `INSERT INTO services (id, name, code, price, tax_code_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, code = EXCLUDED.code,
			price = EXCLUDED.price, tax_code_id = EXCLUDED.tax_code_id`

	upsertCustomerSQL = `INSERT INTO customers (id, name, tax_code_id) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, tax_code_id = EXCLUDED.tax_code_id`

	upsertDiscountSQL = `INSERT INTO discounts
		(id, name, discount_type, value, active, applies_to_all, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value, active = EXCLUDED.active, applies_to_all = EXCLUDED.applies_to_all,
			starts_at = EXCLUDED.starts_at, ends_at = EXCLUDED.ends_at`

	deleteDiscountItemsSQL = `DELETE FROM discount_items WHERE discount_id = $1`

	createDiscountItemSQL = `INSERT INTO discount_items (discount_id, sellable_kind, sellable_id)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
)

var (
	_ catalog.SellableRepository = (*CatalogRepository)(nil)
	_ catalog.TaxCodeRepository  = (*CatalogRepository)(nil)
	_ catalog.CustomerRepository = (*CatalogRepository)(nil)
	_ discount.Repository        = (*CatalogRepository)(nil)
)

// CatalogRepository implements the catalog lookups backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetSellable resolves a product or service reference.
func (r *CatalogRepository) GetSellable(ctx context.Context, ref catalog.SellableRef) (catalog.Sellable, error) {
	var (
		s   catalog.Sellable
		err error
	)
	switch ref.Kind {
	case catalog.KindProduct:
		var p catalog.Product
		err = r.pool.QueryRow(ctx, getProductSQL, ref.ID).Scan(&p.ID, &p.Name, &p.Code, &p.Price, &p.TaxCode, &p.Stock)
		s = p
	case catalog.KindService:
		var sv catalog.Service
		err = r.pool.QueryRow(ctx, getServiceSQL, ref.ID).Scan(&sv.ID, &sv.Name, &sv.Code, &sv.Price, &sv.TaxCode)
		s = sv
	default:
		return nil, catalog.ErrSellableNotFound
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrSellableNotFound
		}
		return nil, fmt.Errorf("getting sellable %s: %w", ref, err)
	}
	return s, nil
}

func (r *CatalogRepository) GetTaxCode(ctx context.Context, id string) (*catalog.TaxCode, error) {
	var tc catalog.TaxCode
	err := r.pool.QueryRow(ctx, getTaxCodeSQL, id).Scan(&tc.ID, &tc.Name, &tc.Rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrTaxCodeNotFound
		}
		return nil, fmt.Errorf("getting tax code %q: %w", id, err)
	}
	return &tc, nil
}

func (r *CatalogRepository) GetCustomer(ctx context.Context, id string) (*catalog.Customer, error) {
	var c catalog.Customer
	err := r.pool.QueryRow(ctx, getCustomerSQL, id).Scan(&c.ID, &c.Name, &c.TaxCodeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return &c, nil
}

// ListActive returns the rules active at now in insertion order.
func (r *CatalogRepository) ListActive(ctx context.Context, now time.Time) ([]discount.Discount, error) {
	rows, err := r.pool.Query(ctx, listActiveDiscountsSQL, now)
	if err != nil {
		return nil, fmt.Errorf("listing active discounts: %w", err)
	}
	return pgx.CollectRows(rows, scanDiscount)
}

// UpsertTaxCode inserts or replaces a tax code.
func (r *CatalogRepository) UpsertTaxCode(ctx context.Context, tc catalog.TaxCode) error {
	if _, err := r.pool.Exec(ctx, upsertTaxCodeSQL, tc.ID, tc.Name, tc.Rate); err != nil {
		return fmt.Errorf("upserting tax code %q: %w", tc.ID, err)
	}
	return nil
}

// UpsertProduct inserts or replaces a product.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, p catalog.Product) error {
	if _, err := r.pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Code, p.Price, p.TaxCode, p.Stock); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

// UpsertService inserts or replaces a service.
func (r *CatalogRepository) UpsertService(ctx context.Context, s catalog.Service) error {
	if _, err := r.pool.Exec(ctx, upsertServiceSQL, s.ID, s.Name, s.Code, s.Price, s.TaxCode); err != nil {
		return fmt.Errorf("upserting service %q: %w", s.ID, err)
	}
	return nil
}

// UpsertCustomer inserts or replaces a customer.
func (r *CatalogRepository) UpsertCustomer(ctx context.Context, c catalog.Customer) error {
	if _, err := r.pool.Exec(ctx, upsertCustomerSQL, c.ID, c.Name, c.TaxCodeID); err != nil {
		return fmt.Errorf("upserting customer %q: %w", c.ID, err)
	}
	return nil
}

// UpsertDiscount inserts or replaces a discount rule and its targets.
func (r *CatalogRepository) UpsertDiscount(ctx context.Context, d discount.Discount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, upsertDiscountSQL,
			d.ID, d.Name, string(d.Type), d.Value, d.Active, d.AppliesToAll, d.StartsAt, d.EndsAt,
		)
		if err != nil {
			return fmt.Errorf("upserting discount %q: %w", d.ID, err)
		}
		if _, err := tx.Exec(ctx, deleteDiscountItemsSQL, d.ID); err != nil {
			return fmt.Errorf("clearing items of discount %q: %w", d.ID, err)
		}
		for _, item := range d.Items {
			if _, err := tx.Exec(ctx, createDiscountItemSQL, d.ID, string(item.Kind), item.ID); err != nil {
				return fmt.Errorf("adding %s to discount %q: %w", item, d.ID, err)
			}
		}
		return nil
	})
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var (
		d     discount.Discount
		typ   string
		items []string
	)
	err := row.Scan(
		&d.ID, &d.Name, &typ, &d.Value, &d.Active, &d.AppliesToAll,
		&d.StartsAt, &d.EndsAt, &items,
	)
	if err != nil {
		return d, err
	}
	d.Type = discount.Type(typ)
	for _, item := range items {
		ref, err := catalog.ParseSellableRef(item)
		if err != nil {
			return d, err
		}
		d.Items = append(d.Items, ref)
	}
	return d, nil
}
