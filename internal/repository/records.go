package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/order"
)

const (
	listPaymentsSQL = `SELECT id, order_id, method, amount, created_at
		FROM payments WHERE order_id = $1 ORDER BY seq`

	createPaymentSQL = `INSERT INTO payments (id, order_id, method, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	listRefundsSQL = `SELECT r.id, r.order_id, r.amount, r.reason, r.processed_by, r.created_at,
		COALESCE(json_agg(json_build_object(
			'line_id', rl.order_line_id,
			'quantity', rl.quantity,
			'amount', rl.amount::text,
			'restock', rl.restock
		) ORDER BY rl.order_line_id) FILTER (WHERE rl.refund_id IS NOT NULL), '[]')
		FROM refunds r
		LEFT JOIN refund_lines rl ON rl.refund_id = r.id
		WHERE r.order_id = $1
		GROUP BY r.seq, r.id
		ORDER BY r.seq`

	createRefundSQL = `INSERT INTO refunds (id, order_id, amount, reason, processed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	createRefundLineSQL = `INSERT INTO refund_lines (refund_id, order_line_id, quantity, amount, restock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (refund_id, order_line_id) DO UPDATE
		SET quantity = refund_lines.quantity + EXCLUDED.quantity,
			amount = refund_lines.amount + EXCLUDED.amount,
			restock = refund_lines.restock OR EXCLUDED.restock`

	adjustStockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1`

	appendEventSQL = `INSERT INTO order_events (id, order_id, event_type, actor, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

func (s *OrderStore) ListPayments(ctx context.Context, orderID string) ([]order.Payment, error) {
	rows, err := s.q.Query(ctx, listPaymentsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing payments of order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Payment, error) {
		var (
			p      order.Payment
			method string
		)
		err := row.Scan(&p.ID, &p.OrderID, &method, &p.Amount, &p.CreatedAt)
		p.Method = order.PaymentMethod(method)
		return p, err
	})
}

func (s *OrderStore) CreatePayment(ctx context.Context, p *order.Payment) error {
	if !p.Amount.IsPositive() {
		return &order.ValidationError{Entity: "payment", Field: "amount", Message: "must be greater than 0"}
	}
	_, err := s.q.Exec(ctx, createPaymentSQL, p.ID, p.OrderID, string(p.Method), p.Amount, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating payment %q: %w", p.ID, err)
	}
	return nil
}

func (s *OrderStore) ListRefunds(ctx context.Context, orderID string) ([]order.Refund, error) {
	rows, err := s.q.Query(ctx, listRefundsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing refunds of order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanRefund)
}

// CreateRefund inserts the refund and its lines. Lines naming the same
// order line are merged.
func (s *OrderStore) CreateRefund(ctx context.Context, r *order.Refund) error {
	if r.Amount.IsNegative() {
		return &order.ValidationError{Entity: "refund", Field: "amount", Message: "must not be negative"}
	}
	_, err := s.q.Exec(ctx, createRefundSQL, r.ID, r.OrderID, r.Amount, r.Reason, r.ProcessedBy, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating refund %q: %w", r.ID, err)
	}
	for _, rl := range r.Lines {
		_, err := s.q.Exec(ctx, createRefundLineSQL, r.ID, rl.LineID, rl.Quantity, rl.Amount, rl.Restock)
		if err != nil {
			return fmt.Errorf("creating refund line %q: %w", rl.LineID, err)
		}
	}
	return nil
}

func (s *OrderStore) AdjustStock(ctx context.Context, productID string, delta int) error {
	tag, err := s.q.Exec(ctx, adjustStockSQL, productID, delta)
	if err != nil {
		return fmt.Errorf("adjusting stock of product %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %q: %w", productID, catalog.ErrSellableNotFound)
	}
	return nil
}

// AppendEvent inserts an audit event. Data is stored as a JSONB object.
func (s *OrderStore) AppendEvent(ctx context.Context, e *order.Event) error {
	data := e.Data
	if data == nil {
		data = map[string]string{}
	}
	_, err := s.q.Exec(ctx, appendEventSQL, e.ID, e.OrderID, string(e.Type), e.Actor, data, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending %s event to order %q: %w", e.Type, e.OrderID, err)
	}
	return nil
}

func scanRefund(row pgx.CollectableRow) (order.Refund, error) {
	var (
		r     order.Refund
		lines []byte
	)
	if err := row.Scan(&r.ID, &r.OrderID, &r.Amount, &r.Reason, &r.ProcessedBy, &r.CreatedAt, &lines); err != nil {
		return r, err
	}
	var err error
	r.Lines, err = decodeRefundLines(lines)
	return r, err
}

// decodeRefundLines parses the json_agg array built by listRefundsSQL.
// Amounts travel as strings to keep their exact decimal value.
func decodeRefundLines(raw []byte) ([]order.RefundLine, error) {
	var lines []order.RefundLine
	err := jx.DecodeBytes(raw).Arr(func(d *jx.Decoder) error {
		var rl order.RefundLine
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "line_id":
				rl.LineID, err = d.Str()
			case "quantity":
				rl.Quantity, err = d.Int()
			case "amount":
				var v string
				if v, err = d.Str(); err == nil {
					rl.Amount, err = decimal.NewFromString(v)
				}
			case "restock":
				rl.Restock, err = d.Bool()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		lines = append(lines, rl)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode refund lines")
	}
	return lines, nil
}
