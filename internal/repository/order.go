package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/order"
)

const (
	orderColumns = `id, status, customer_id, subtotal, discount_total, tax_total, total,
		overridden_discount_ids, created_at, updated_at, completed_at`

	// The row lock serializes concurrent operations on one order.
	getOrderForUpdateSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	updateOrderSQL = `UPDATE orders SET status = $2, customer_id = $3, subtotal = $4,
		discount_total = $5, tax_total = $6, total = $7, overridden_discount_ids = $8,
		updated_at = $9, completed_at = $10
		WHERE id = $1`

	lineColumns = `id, order_id, sellable_kind, sellable_id, name, code, quantity, unit_price,
		product_tax_code_id, tax_code_id, tax_rate, tax_amount, discount_amount, line_total, position`

	listLinesSQL = `SELECT ` + lineColumns + ` FROM order_lines
		WHERE order_id = $1 ORDER BY position, id`

	createLineSQL = `INSERT INTO order_lines (` + lineColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	updateLineSQL = `UPDATE order_lines SET quantity = $3, unit_price = $4, tax_code_id = $5,
		tax_rate = $6, tax_amount = $7, discount_amount = $8, line_total = $9, position = $10
		WHERE id = $1 AND order_id = $2`

	deleteLineSQL = `DELETE FROM order_lines WHERE id = $1 AND order_id = $2`
)

var _ order.Transactor = (*Transactor)(nil)

// Transactor runs order operations in PostgreSQL transactions.
type Transactor struct {
	pool *pgxpool.Pool
}

// NewTransactor returns a Transactor that uses the given pool.
func NewTransactor(pool *pgxpool.Pool) *Transactor {
	return &Transactor{pool: pool}
}

// WithinTx runs fn in a transaction that is committed when fn returns nil.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, s order.Store) error) error {
	return pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		return fn(ctx, &OrderStore{q: tx})
	})
}

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store on one transaction.
type OrderStore struct {
	q querier
}

// GetOrder loads an order and locks its row until the transaction ends.
func (s *OrderStore) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	rows, err := s.q.Query(ctx, getOrderForUpdateSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return o, nil
}

func (s *OrderStore) CreateOrder(ctx context.Context, o *order.Order) error {
	if err := validateOrder(o); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx, createOrderSQL,
		o.ID, string(o.Status), o.CustomerID, o.Subtotal, o.DiscountTotal, o.TaxTotal, o.Total,
		o.Overrides.IDs(), o.CreatedAt, o.UpdatedAt, o.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

func (s *OrderStore) UpdateOrder(ctx context.Context, o *order.Order) error {
	if err := validateOrder(o); err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), o.CustomerID, o.Subtotal, o.DiscountTotal, o.TaxTotal, o.Total,
		o.Overrides.IDs(), o.UpdatedAt, o.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (s *OrderStore) ListLines(ctx context.Context, orderID string) ([]*order.Line, error) {
	rows, err := s.q.Query(ctx, listLinesSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing lines of order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanLine)
}

func (s *OrderStore) CreateLine(ctx context.Context, l *order.Line) error {
	if err := l.Validate(); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx, createLineSQL,
		l.ID, l.OrderID, string(l.Sellable.Kind), l.Sellable.ID, l.Name, l.Code, l.Quantity, l.UnitPrice,
		l.ProductTaxCodeID, l.TaxCodeID, l.TaxRate, l.TaxAmount, l.DiscountAmount, l.LineTotal, l.Position,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return order.ErrNotFound
		}
		return fmt.Errorf("creating line %q: %w", l.ID, err)
	}
	return nil
}

func (s *OrderStore) UpdateLine(ctx context.Context, l *order.Line) error {
	if err := l.Validate(); err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, updateLineSQL,
		l.ID, l.OrderID, l.Quantity, l.UnitPrice, l.TaxCodeID,
		l.TaxRate, l.TaxAmount, l.DiscountAmount, l.LineTotal, l.Position,
	)
	if err != nil {
		return fmt.Errorf("updating line %q: %w", l.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrLineNotFound
	}
	return nil
}

// DeleteLine removes a line. Discount joins and line discounts go with it
// through ON DELETE CASCADE.
func (s *OrderStore) DeleteLine(ctx context.Context, orderID, lineID string) error {
	tag, err := s.q.Exec(ctx, deleteLineSQL, lineID, orderID)
	if err != nil {
		return fmt.Errorf("deleting line %q: %w", lineID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrLineNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o           order.Order
		status      string
		overrides   []string
		completedAt *time.Time
	)
	err := row.Scan(
		&o.ID, &status, &o.CustomerID, &o.Subtotal, &o.DiscountTotal, &o.TaxTotal, &o.Total,
		&overrides, &o.CreatedAt, &o.UpdatedAt, &completedAt,
	)
	o.Status = order.Status(status)
	o.Overrides = order.NewDiscountSet(overrides...)
	o.CompletedAt = completedAt
	return &o, err
}

func scanLine(row pgx.CollectableRow) (*order.Line, error) {
	var (
		l    order.Line
		kind string
	)
	err := row.Scan(
		&l.ID, &l.OrderID, &kind, &l.Sellable.ID, &l.Name, &l.Code, &l.Quantity, &l.UnitPrice,
		&l.ProductTaxCodeID, &l.TaxCodeID, &l.TaxRate, &l.TaxAmount, &l.DiscountAmount, &l.LineTotal, &l.Position,
	)
	l.Sellable.Kind = catalog.Kind(kind)
	return &l, err
}

func validateOrder(o *order.Order) error {
	if o.ID == "" {
		return &order.ValidationError{Entity: "order", Field: "id", Message: "is required"}
	}
	if !o.Status.Valid() {
		return &order.ValidationError{Entity: "order", Field: "status", Message: "is not supported"}
	}
	return nil
}

// isForeignKeyViolation reports whether err is a PostgreSQL foreign key
// violation (SQLSTATE 23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
