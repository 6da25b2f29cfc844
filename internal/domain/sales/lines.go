package sales

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/order"
)

func quantityError(qty int) error {
	if qty > 0 {
		return nil
	}
	return &order.ValidationError{Entity: "line", Field: "quantity", Message: "must be greater than 0"}
}

// AddLine adds qty of a sellable to an open order. Adding a sellable that is
// already on the order increases that line's quantity.
func (s *Service) AddLine(ctx context.Context, orderID string, ref catalog.SellableRef, qty int) (*Snapshot, error) {
	if err := quantityError(qty); err != nil {
		return nil, err
	}
	sellable, err := s.sellables.GetSellable(ctx, ref)
	if err != nil {
		return nil, errors.Wrapf(err, "get sellable %s", ref)
	}
	snap := catalog.TakeSnapshot(sellable)

	return s.edit(ctx, orderID, order.EventLineAdded, func(ctx context.Context, st order.Store, o *order.Order) (map[string]string, error) {
		lines, err := st.ListLines(ctx, o.ID)
		if err != nil {
			return nil, errors.Wrap(err, "list lines")
		}

		position := 0
		for _, l := range lines {
			if l.Sellable == ref {
				l.Quantity += qty
				l.Reprice()
				if err := st.UpdateLine(ctx, l); err != nil {
					return nil, errors.Wrapf(err, "update line %s", l.ID)
				}
				return map[string]string{"line_id": l.ID, "sellable": ref.String(), "quantity": itoa(l.Quantity)}, nil
			}
			position = max(position, l.Position+1)
		}

		l := order.NewLine(s.newID(), o.ID, snap, qty, position)
		if err := st.CreateLine(ctx, l); err != nil {
			return nil, errors.Wrap(err, "create line")
		}
		return map[string]string{"line_id": l.ID, "sellable": ref.String(), "quantity": itoa(qty)}, nil
	})
}

// UpdateLineQuantity sets the quantity of a line on an open order.
func (s *Service) UpdateLineQuantity(ctx context.Context, orderID, lineID string, qty int) (*Snapshot, error) {
	if err := quantityError(qty); err != nil {
		return nil, err
	}
	return s.edit(ctx, orderID, order.EventLineUpdated, func(ctx context.Context, st order.Store, o *order.Order) (map[string]string, error) {
		l, err := getLine(ctx, st, o.ID, lineID)
		if err != nil {
			return nil, err
		}
		l.Quantity = qty
		l.Reprice()
		if err := st.UpdateLine(ctx, l); err != nil {
			return nil, errors.Wrapf(err, "update line %s", l.ID)
		}
		return map[string]string{"line_id": l.ID, "quantity": itoa(qty)}, nil
	})
}

// RemoveLine deletes a line from an open order together with the per-line
// discounts entered against it.
func (s *Service) RemoveLine(ctx context.Context, orderID, lineID string) (*Snapshot, error) {
	return s.edit(ctx, orderID, order.EventLineRemoved, func(ctx context.Context, st order.Store, o *order.Order) (map[string]string, error) {
		if _, err := getLine(ctx, st, o.ID, lineID); err != nil {
			return nil, err
		}

		lds, err := st.ListLineDiscounts(ctx, o.ID)
		if err != nil {
			return nil, errors.Wrap(err, "list line discounts")
		}
		for _, ld := range lds {
			if ld.LineID != lineID {
				continue
			}
			if err := st.DeleteDiscount(ctx, o.ID, ld.OrderDiscountID); err != nil {
				return nil, errors.Wrapf(err, "delete discount %s", ld.OrderDiscountID)
			}
		}

		if err := st.DeleteLine(ctx, o.ID, lineID); err != nil {
			return nil, errors.Wrapf(err, "delete line %s", lineID)
		}
		return map[string]string{"line_id": lineID}, nil
	})
}

// AssignCustomer sets or, with an empty ID, clears the customer of an open
// order. Lines fall back to their product tax codes before the new
// customer's tax code is applied.
func (s *Service) AssignCustomer(ctx context.Context, orderID, customerID string) (*Snapshot, error) {
	if customerID != "" {
		if _, err := s.customers.GetCustomer(ctx, customerID); err != nil {
			return nil, errors.Wrapf(err, "get customer %s", customerID)
		}
	}

	return s.edit(ctx, orderID, order.EventCustomerAssigned, func(ctx context.Context, st order.Store, o *order.Order) (map[string]string, error) {
		previous := o.CustomerID
		o.CustomerID = customerID

		lines, err := st.ListLines(ctx, o.ID)
		if err != nil {
			return nil, errors.Wrap(err, "list lines")
		}
		for _, l := range lines {
			if l.TaxCodeID == l.ProductTaxCodeID {
				continue
			}
			l.TaxCodeID = l.ProductTaxCodeID
			if err := st.UpdateLine(ctx, l); err != nil {
				return nil, errors.Wrapf(err, "update line %s", l.ID)
			}
		}
		return map[string]string{"customer_id": customerID, "previous_customer_id": previous}, nil
	})
}

func getLine(ctx context.Context, st order.Store, orderID, lineID string) (*order.Line, error) {
	lines, err := st.ListLines(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list lines")
	}
	l, ok := findLine(lines, lineID)
	if !ok {
		return nil, errors.Wrapf(order.ErrLineNotFound, "line %s", lineID)
	}
	return l, nil
}
