// Package memory provides in-process implementations of the order store and
// the catalog lookups. It backs the API server when no database is
// configured and is used by tests across the repository.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/pos-pricing/internal/domain/auth"
	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/discount"
)

var (
	_ catalog.SellableRepository = (*Catalog)(nil)
	_ catalog.TaxCodeRepository  = (*Catalog)(nil)
	_ catalog.CustomerRepository = (*Catalog)(nil)
	_ discount.Repository        = (*Catalog)(nil)
	_ auth.Repository            = (*Catalog)(nil)
)

// Catalog holds products, services, tax codes, customers, discount rules and
// API keys. It is safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	products  map[string]catalog.Product
	services  map[string]catalog.Service
	taxCodes  map[string]catalog.TaxCode
	customers map[string]catalog.Customer
	discounts []discount.Discount
	apiKeys   map[string]auth.APIKeyInfo
}

// NewCatalog returns an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		products:  make(map[string]catalog.Product),
		services:  make(map[string]catalog.Service),
		taxCodes:  make(map[string]catalog.TaxCode),
		customers: make(map[string]catalog.Customer),
		apiKeys:   make(map[string]auth.APIKeyInfo),
	}
}

// PutProduct inserts or replaces a product.
func (c *Catalog) PutProduct(p catalog.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

// PutService inserts or replaces a service.
func (c *Catalog) PutService(s catalog.Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[s.ID] = s
}

// PutTaxCode inserts or replaces a tax code.
func (c *Catalog) PutTaxCode(tc catalog.TaxCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taxCodes[tc.ID] = tc
}

// PutCustomer inserts or replaces a customer.
func (c *Catalog) PutCustomer(cu catalog.Customer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.customers[cu.ID] = cu
}

// PutDiscount inserts or replaces a discount rule. New rules are appended to
// the catalog order; replaced rules keep their place.
func (c *Catalog) PutDiscount(d discount.Discount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	d.Items = slices.Clone(d.Items)

	c.mu.Lock()
	defer c.mu.Unlock()
	if i := slices.IndexFunc(c.discounts, func(x discount.Discount) bool { return x.ID == d.ID }); i >= 0 {
		c.discounts[i] = d
		return nil
	}
	c.discounts = append(c.discounts, d)
	return nil
}

// PutAPIKey registers an API key by its hash.
func (c *Catalog) PutAPIKey(info auth.APIKeyInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info.Scopes = slices.Clone(info.Scopes)
	c.apiKeys[info.KeyHash] = info
}

// GetSellable resolves a product or service reference.
func (c *Catalog) GetSellable(_ context.Context, ref catalog.SellableRef) (catalog.Sellable, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch ref.Kind {
	case catalog.KindProduct:
		if p, ok := c.products[ref.ID]; ok {
			return p, nil
		}
	case catalog.KindService:
		if s, ok := c.services[ref.ID]; ok {
			return s, nil
		}
	}
	return nil, catalog.ErrSellableNotFound
}

// Product returns the current state of a product, including its stock level.
func (c *Catalog) Product(id string) (catalog.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	return p, ok
}

func (c *Catalog) GetTaxCode(_ context.Context, id string) (*catalog.TaxCode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tc, ok := c.taxCodes[id]
	if !ok {
		return nil, catalog.ErrTaxCodeNotFound
	}
	return &tc, nil
}

func (c *Catalog) GetCustomer(_ context.Context, id string) (*catalog.Customer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cu, ok := c.customers[id]
	if !ok {
		return nil, catalog.ErrCustomerNotFound
	}
	return &cu, nil
}

// ListActive returns the rules active at now in insertion order.
func (c *Catalog) ListActive(_ context.Context, now time.Time) ([]discount.Discount, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var active []discount.Discount
	for _, d := range c.discounts {
		if d.ActiveAt(now) {
			d.Items = slices.Clone(d.Items)
			active = append(active, d)
		}
	}
	return active, nil
}

// FindByHash looks up an API key by its HMAC-SHA256 hash.
func (c *Catalog) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.apiKeys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	info.Scopes = slices.Clone(info.Scopes)
	return &info, nil
}

// adjustStock changes a product's stock level. Stock may go negative.
func (c *Catalog) adjustStock(productID string, delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[productID]
	if !ok {
		return errors.Wrapf(catalog.ErrSellableNotFound, "product %s", productID)
	}
	p.Stock += delta
	c.products[productID] = p
	return nil
}

// UpsertTaxCode is PutTaxCode in the shape of the catalog writers used by
// seeding and bulk imports.
func (c *Catalog) UpsertTaxCode(_ context.Context, tc catalog.TaxCode) error {
	c.PutTaxCode(tc)
	return nil
}

func (c *Catalog) UpsertProduct(_ context.Context, p catalog.Product) error {
	c.PutProduct(p)
	return nil
}

func (c *Catalog) UpsertService(_ context.Context, s catalog.Service) error {
	c.PutService(s)
	return nil
}

func (c *Catalog) UpsertCustomer(_ context.Context, cu catalog.Customer) error {
	c.PutCustomer(cu)
	return nil
}

func (c *Catalog) UpsertDiscount(_ context.Context, d discount.Discount) error {
	return c.PutDiscount(d)
}
