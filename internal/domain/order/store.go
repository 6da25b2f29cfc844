package order

import (
	"context"
)

// Store persists one order aggregate and its children. Implementations
// validate records on write and return *ValidationError on failure.
// Lines are returned sorted by position.
type Store interface {
	GetOrder(ctx context.Context, id string) (*Order, error)
	CreateOrder(ctx context.Context, o *Order) error
	UpdateOrder(ctx context.Context, o *Order) error

	ListLines(ctx context.Context, orderID string) ([]*Line, error)
	CreateLine(ctx context.Context, l *Line) error
	UpdateLine(ctx context.Context, l *Line) error
	// DeleteLine removes the line with its discount joins and line discounts.
	DeleteLine(ctx context.Context, orderID, lineID string) error

	ListDiscounts(ctx context.Context, orderID string) ([]*Discount, error)
	CreateDiscount(ctx context.Context, d *Discount) error
	UpdateDiscount(ctx context.Context, d *Discount) error
	// DeleteDiscount removes the discount with its joins and line discounts.
	DeleteDiscount(ctx context.Context, orderID, id string) error

	ListLineDiscounts(ctx context.Context, orderID string) ([]*LineDiscount, error)
	CreateLineDiscount(ctx context.Context, d *LineDiscount) error
	UpdateLineDiscount(ctx context.Context, d *LineDiscount) error

	ListPayments(ctx context.Context, orderID string) ([]Payment, error)
	CreatePayment(ctx context.Context, p *Payment) error
	ListRefunds(ctx context.Context, orderID string) ([]Refund, error)
	CreateRefund(ctx context.Context, r *Refund) error

	// AdjustStock changes a product's stock level by delta.
	AdjustStock(ctx context.Context, productID string, delta int) error
	AppendEvent(ctx context.Context, e *Event) error
}

// Transactor runs fn against a Store inside one transaction. The
// transaction is rolled back when fn returns an error.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
