// Package catalog holds the read-side entities the pricing engine snapshots
// into orders: sellables (products and services), tax codes and customers.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrSellableNotFound is returned when a product or service does not exist.
	ErrSellableNotFound = errors.New("sellable not found")
	// ErrTaxCodeNotFound is returned when a tax code reference cannot be resolved.
	ErrTaxCodeNotFound = errors.New("tax code not found")
	// ErrCustomerNotFound is returned when a customer does not exist.
	ErrCustomerNotFound = errors.New("customer not found")
)

// TaxCode is a named tax rate. Rate is a fraction: 0.13 means 13%.
type TaxCode struct {
	ID   string
	Name string
	Rate decimal.Decimal
}

// Customer is the buyer assigned to an order. A customer tax code overrides
// the product-level tax code of every line on the order.
type Customer struct {
	ID        string
	Name      string
	TaxCodeID string
}

// SellableRepository resolves sellable references to catalog entries.
type SellableRepository interface {
	GetSellable(ctx context.Context, ref SellableRef) (Sellable, error)
}

// TaxCodeRepository resolves tax codes by ID.
type TaxCodeRepository interface {
	GetTaxCode(ctx context.Context, id string) (*TaxCode, error)
}

// CustomerRepository resolves customers by ID.
type CustomerRepository interface {
	GetCustomer(ctx context.Context, id string) (*Customer, error)
}
