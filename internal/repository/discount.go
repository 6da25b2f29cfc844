package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xenking/pos-pricing/internal/domain/order"
)

const (
	// Joined line IDs are aggregated in line position order.
	listOrderDiscountsSQL = `SELECT d.id, d.order_id, d.name, d.discount_type, d.value, d.scope,
		d.calculated_amount, d.discount_id, d.applied_by,
		COALESCE(array_agg(i.order_line_id ORDER BY l.position, l.id)
			FILTER (WHERE i.order_line_id IS NOT NULL), '{}')
		FROM order_discounts d
		LEFT JOIN order_discount_items i ON i.order_discount_id = d.id
		LEFT JOIN order_lines l ON l.id = i.order_line_id
		WHERE d.order_id = $1
		GROUP BY d.seq, d.id
		ORDER BY d.seq`

	createOrderDiscountSQL = `INSERT INTO order_discounts
		(id, order_id, name, discount_type, value, scope, calculated_amount, discount_id, applied_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	// Only lines of the discount's own order are joined; callers compare
	// the row count with the requested IDs.
	createOrderDiscountItemsSQL = `INSERT INTO order_discount_items (order_discount_id, order_line_id)
		SELECT $1, l.id FROM order_lines l
		WHERE l.order_id = $3 AND l.id = ANY($2::text[])`

	updateOrderDiscountSQL = `UPDATE order_discounts SET name = $3, discount_type = $4, value = $5,
		scope = $6, calculated_amount = $7, applied_by = $8
		WHERE id = $1 AND order_id = $2`

	deleteOrderDiscountSQL = `DELETE FROM order_discounts WHERE id = $1 AND order_id = $2`

	listLineDiscountsSQL = `SELECT id, order_id, order_line_id, order_discount_id, name,
		discount_type, value, amount, applied_by
		FROM order_line_discounts WHERE order_id = $1 ORDER BY seq`

	createLineDiscountSQL = `INSERT INTO order_line_discounts
		(id, order_id, order_line_id, order_discount_id, name, discount_type, value, amount, applied_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	updateLineDiscountSQL = `UPDATE order_line_discounts SET name = $3, discount_type = $4,
		value = $5, amount = $6
		WHERE id = $1 AND order_id = $2`
)

func (s *OrderStore) ListDiscounts(ctx context.Context, orderID string) ([]*order.Discount, error) {
	rows, err := s.q.Query(ctx, listOrderDiscountsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing discounts of order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanOrderDiscount)
}

// CreateDiscount inserts the discount and, for specific-items discounts, its
// line joins.
func (s *OrderStore) CreateDiscount(ctx context.Context, d *order.Discount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx, createOrderDiscountSQL,
		d.ID, d.OrderID, d.Name, string(d.Type), d.Value, string(d.Scope),
		d.CalculatedAmount, d.DiscountID, d.AppliedBy,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return order.ErrNotFound
		}
		return fmt.Errorf("creating discount %q: %w", d.ID, err)
	}

	if len(d.LineIDs) == 0 {
		return nil
	}
	tag, err := s.q.Exec(ctx, createOrderDiscountItemsSQL, d.ID, d.LineIDs, d.OrderID)
	if err != nil {
		return fmt.Errorf("joining discount %q: %w", d.ID, err)
	}
	if tag.RowsAffected() != int64(len(d.LineIDs)) {
		return fmt.Errorf("joining discount %q: %w", d.ID, order.ErrLineNotFound)
	}
	return nil
}

// UpdateDiscount writes the mutable fields of a discount. Line joins and
// the catalog reference never change after creation.
func (s *OrderStore) UpdateDiscount(ctx context.Context, d *order.Discount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, updateOrderDiscountSQL,
		d.ID, d.OrderID, d.Name, string(d.Type), d.Value, string(d.Scope), d.CalculatedAmount, d.AppliedBy,
	)
	if err != nil {
		return fmt.Errorf("updating discount %q: %w", d.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrDiscountNotFound
	}
	return nil
}

func (s *OrderStore) DeleteDiscount(ctx context.Context, orderID, id string) error {
	tag, err := s.q.Exec(ctx, deleteOrderDiscountSQL, id, orderID)
	if err != nil {
		return fmt.Errorf("deleting discount %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrDiscountNotFound
	}
	return nil
}

func (s *OrderStore) ListLineDiscounts(ctx context.Context, orderID string) ([]*order.LineDiscount, error) {
	rows, err := s.q.Query(ctx, listLineDiscountsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing line discounts of order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanLineDiscount)
}

func (s *OrderStore) CreateLineDiscount(ctx context.Context, d *order.LineDiscount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx, createLineDiscountSQL,
		d.ID, d.OrderID, d.LineID, d.OrderDiscountID, d.Name, string(d.Type), d.Value, d.Amount, d.AppliedBy,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("creating line discount %q: %w", d.ID, order.ErrLineNotFound)
		}
		return fmt.Errorf("creating line discount %q: %w", d.ID, err)
	}
	return nil
}

func (s *OrderStore) UpdateLineDiscount(ctx context.Context, d *order.LineDiscount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, updateLineDiscountSQL,
		d.ID, d.OrderID, d.Name, string(d.Type), d.Value, d.Amount,
	)
	if err != nil {
		return fmt.Errorf("updating line discount %q: %w", d.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrLineDiscountNotFound
	}
	return nil
}

func scanOrderDiscount(row pgx.CollectableRow) (*order.Discount, error) {
	var (
		d       order.Discount
		typ     string
		scope   string
		lineIDs []string
	)
	err := row.Scan(
		&d.ID, &d.OrderID, &d.Name, &typ, &d.Value, &scope,
		&d.CalculatedAmount, &d.DiscountID, &d.AppliedBy, &lineIDs,
	)
	d.Type = order.DiscountType(typ)
	d.Scope = order.Scope(scope)
	if len(lineIDs) > 0 {
		d.LineIDs = lineIDs
	}
	return &d, err
}

func scanLineDiscount(row pgx.CollectableRow) (*order.LineDiscount, error) {
	var (
		d   order.LineDiscount
		typ string
	)
	err := row.Scan(
		&d.ID, &d.OrderID, &d.LineID, &d.OrderDiscountID, &d.Name,
		&typ, &d.Value, &d.Amount, &d.AppliedBy,
	)
	d.Type = order.DiscountType(typ)
	return &d, err
}
