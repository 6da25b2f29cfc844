package sales

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/auth"
	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/order"
)

// Hold parks a draft order.
func (s *Service) Hold(ctx context.Context, orderID string) (*Snapshot, error) {
	return s.transition(ctx, orderID, order.EventHeld, (*order.Order).Hold)
}

// Resume reopens a held order.
func (s *Service) Resume(ctx context.Context, orderID string) (*Snapshot, error) {
	return s.transition(ctx, orderID, order.EventResumed, (*order.Order).Resume)
}

// Cancel abandons a draft or held order.
func (s *Service) Cancel(ctx context.Context, orderID string) (*Snapshot, error) {
	return s.transition(ctx, orderID, order.EventCancelled, (*order.Order).Cancel)
}

func (s *Service) transition(ctx context.Context, orderID string, typ order.EventType, fn func(*order.Order) error) (*Snapshot, error) {
	var snap *Snapshot
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st order.Store) error {
		o, err := st.GetOrder(ctx, orderID)
		if err != nil {
			return errors.Wrapf(err, "get order %s", orderID)
		}
		from := o.Status
		if err := fn(o); err != nil {
			return err
		}
		o.UpdatedAt = s.now()
		if err := st.UpdateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		if err := s.appendEvent(ctx, st, o.ID, typ, map[string]string{
			"from": string(from),
			"to":   string(o.Status),
		}); err != nil {
			return err
		}
		snap, err = load(ctx, st, o)
		return err
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", orderID),
		zap.String("status", string(snap.Order.Status)),
	)
	return snap, nil
}

// Tender is one payment offered at completion.
type Tender struct {
	Method order.PaymentMethod
	Amount decimal.Decimal
}

// Complete reprices a draft order one last time, records the payments and
// closes the order. The payments must cover the total. Stock of every
// product line is decremented.
func (s *Service) Complete(ctx context.Context, orderID string, tenders []Tender) (*Snapshot, error) {
	var snap *Snapshot
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st order.Store) error {
		o, err := st.GetOrder(ctx, orderID)
		if err != nil {
			return errors.Wrapf(err, "get order %s", orderID)
		}
		now := s.now()
		// Check the transition before anything is written.
		probe := *o
		if err := probe.Complete(now); err != nil {
			return err
		}

		lines, err := st.ListLines(ctx, o.ID)
		if err != nil {
			return errors.Wrap(err, "list lines")
		}
		if len(lines) == 0 {
			return order.ErrNoLines
		}

		if o, err = s.engine.Recalculate(ctx, st, o); err != nil {
			return errors.Wrap(err, "recalculate")
		}

		paid := decimal.Zero
		for _, t := range tenders {
			paid = paid.Add(t.Amount)
		}
		if paid.LessThan(o.Total) {
			return &order.InsufficientPaymentError{Paid: paid, Due: o.Total}
		}
		for _, t := range tenders {
			p := &order.Payment{
				ID:        s.newID(),
				OrderID:   o.ID,
				Method:    t.Method,
				Amount:    t.Amount,
				CreatedAt: now,
			}
			if err := st.CreatePayment(ctx, p); err != nil {
				return errors.Wrap(err, "create payment")
			}
		}

		if err := o.Complete(now); err != nil {
			return err
		}
		o.UpdatedAt = now
		if err := st.UpdateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}

		// Lines were repriced but not re-added, so the earlier list is
		// still the set of sellables sold.
		for _, l := range lines {
			if l.Sellable.Kind != catalog.KindProduct {
				continue
			}
			if err := st.AdjustStock(ctx, l.Sellable.ID, -l.Quantity); err != nil {
				return errors.Wrapf(err, "adjust stock of %s", l.Sellable)
			}
		}

		if err := s.appendEvent(ctx, st, o.ID, order.EventCompleted, map[string]string{
			"total":    o.Total.StringFixed(2),
			"paid":     paid.StringFixed(2),
			"change":   paid.Sub(o.Total).StringFixed(2),
			"payments": itoa(len(tenders)),
		}); err != nil {
			return err
		}
		snap, err = load(ctx, st, o)
		return err
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order completed",
		zap.String("order_id", orderID),
		zap.Stringer("total", snap.Order.Total),
	)
	return snap, nil
}

// RefundItem asks for quantity units of a line to be refunded.
type RefundItem struct {
	LineID   string
	Quantity int
	Restock  bool
}

// Refund returns money for part or all of a completed order. Each line is
// refunded at its line total prorated by quantity; the unit that empties a
// line takes whatever of the line total is left. Restocked product lines go
// back to inventory.
func (s *Service) Refund(ctx context.Context, orderID, reason string, items []RefundItem) (*Snapshot, error) {
	if len(items) == 0 {
		return nil, &order.RefundError{Reason: "no lines to refund"}
	}

	var snap *Snapshot
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st order.Store) error {
		o, err := st.GetOrder(ctx, orderID)
		if err != nil {
			return errors.Wrapf(err, "get order %s", orderID)
		}
		probe := *o
		if err := probe.MarkRefunded(false); err != nil {
			return err
		}

		lines, err := st.ListLines(ctx, o.ID)
		if err != nil {
			return errors.Wrap(err, "list lines")
		}
		previous, err := st.ListRefunds(ctx, o.ID)
		if err != nil {
			return errors.Wrap(err, "list refunds")
		}
		refundedQty := make(map[string]int)
		refundedAmount := make(map[string]decimal.Decimal)
		for _, r := range previous {
			for _, rl := range r.Lines {
				refundedQty[rl.LineID] += rl.Quantity
				refundedAmount[rl.LineID] = refundedAmount[rl.LineID].Add(rl.Amount)
			}
		}

		refund := &order.Refund{
			ID:          s.newID(),
			OrderID:     o.ID,
			Amount:      decimal.Zero,
			Reason:      reason,
			ProcessedBy: auth.Actor(ctx),
			CreatedAt:   s.now(),
		}
		for _, item := range items {
			l, ok := findLine(lines, item.LineID)
			if !ok {
				return errors.Wrapf(order.ErrLineNotFound, "line %s", item.LineID)
			}
			remaining := l.Quantity - refundedQty[l.ID]
			switch {
			case item.Quantity <= 0:
				return &order.RefundError{LineID: l.ID, Reason: "quantity must be greater than 0"}
			case item.Quantity > remaining:
				return &order.RefundError{LineID: l.ID, Reason: "quantity exceeds the unrefunded quantity " + itoa(remaining)}
			}

			var amount decimal.Decimal
			if item.Quantity == remaining {
				amount = l.LineTotal.Sub(refundedAmount[l.ID]).Round(2)
			} else {
				amount = l.LineTotal.Mul(decimal.NewFromInt(int64(item.Quantity))).
					Div(decimal.NewFromInt(int64(l.Quantity))).Round(2)
			}
			refundedQty[l.ID] += item.Quantity
			refundedAmount[l.ID] = refundedAmount[l.ID].Add(amount)

			refund.Lines = append(refund.Lines, order.RefundLine{
				LineID:   l.ID,
				Quantity: item.Quantity,
				Amount:   amount,
				Restock:  item.Restock,
			})
			refund.Amount = refund.Amount.Add(amount)

			if item.Restock && l.Sellable.Kind == catalog.KindProduct {
				if err := st.AdjustStock(ctx, l.Sellable.ID, item.Quantity); err != nil {
					return errors.Wrapf(err, "restock %s", l.Sellable)
				}
			}
		}
		if err := st.CreateRefund(ctx, refund); err != nil {
			return errors.Wrap(err, "create refund")
		}

		full := true
		for _, l := range lines {
			if refundedQty[l.ID] < l.Quantity {
				full = false
				break
			}
		}
		if err := o.MarkRefunded(full); err != nil {
			return err
		}
		o.UpdatedAt = s.now()
		if err := st.UpdateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}

		if err := s.appendEvent(ctx, st, o.ID, order.EventRefunded, map[string]string{
			"refund_id": refund.ID,
			"amount":    refund.Amount.StringFixed(2),
			"reason":    reason,
			"status":    string(o.Status),
		}); err != nil {
			return err
		}
		snap, err = load(ctx, st, o)
		return err
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order refunded",
		zap.String("order_id", orderID),
		zap.String("status", string(snap.Order.Status)),
	)
	return snap, nil
}
