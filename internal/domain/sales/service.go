// Package sales implements the order lifecycle on top of the pricing engine.
// Every operation runs in one storage transaction: it loads the order,
// applies the change, reprices the order when its contents changed and
// appends an audit event.
package sales

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/auth"
	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/order"
	"github.com/xenking/pos-pricing/internal/domain/pricing"
)

// Snapshot is an order with everything attached to it, as of the end of an
// operation.
type Snapshot struct {
	Order         *order.Order
	Lines         []*order.Line
	Discounts     []*order.Discount
	LineDiscounts []*order.LineDiscount
	Payments      []order.Payment
	Refunds       []order.Refund
}

// Service runs order lifecycle operations.
type Service struct {
	tx        order.Transactor
	engine    *pricing.Engine
	sellables catalog.SellableRepository
	customers catalog.CustomerRepository

	now   func() time.Time
	newID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator sets the ID generator for new records.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a Service.
func NewService(
	tx order.Transactor,
	engine *pricing.Engine,
	sellables catalog.SellableRepository,
	customers catalog.CustomerRepository,
	opts ...Option,
) *Service {
	s := &Service{
		tx:        tx,
		engine:    engine,
		sellables: sellables,
		customers: customers,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a draft order, optionally for a customer.
func (s *Service) Create(ctx context.Context, customerID string) (*Snapshot, error) {
	if customerID != "" {
		if _, err := s.customers.GetCustomer(ctx, customerID); err != nil {
			return nil, errors.Wrapf(err, "get customer %s", customerID)
		}
	}

	var snap *Snapshot
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st order.Store) error {
		o := order.New(s.newID(), s.now())
		o.CustomerID = customerID
		if err := st.CreateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if err := s.appendEvent(ctx, st, o.ID, order.EventCreated, map[string]string{
			"customer_id": customerID,
		}); err != nil {
			return err
		}

		var err error
		snap, err = load(ctx, st, o)
		return err
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order created", zap.String("order_id", snap.Order.ID))
	return snap, nil
}

// Get returns the current snapshot of an order.
func (s *Service) Get(ctx context.Context, orderID string) (*Snapshot, error) {
	var snap *Snapshot
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st order.Store) error {
		o, err := st.GetOrder(ctx, orderID)
		if err != nil {
			return errors.Wrapf(err, "get order %s", orderID)
		}
		snap, err = load(ctx, st, o)
		return err
	})
	return snap, err
}

// Recalculate reprices an open order against the current catalog.
func (s *Service) Recalculate(ctx context.Context, orderID string) (*Snapshot, error) {
	return s.edit(ctx, orderID, order.EventRecalculated,
		func(context.Context, order.Store, *order.Order) (map[string]string, error) {
			return nil, nil
		})
}

// editFunc changes an open order. The returned attributes are recorded on the
// audit event.
type editFunc func(ctx context.Context, st order.Store, o *order.Order) (map[string]string, error)

// edit runs fn against an open order, then reprices the order and records
// the event.
func (s *Service) edit(ctx context.Context, orderID string, typ order.EventType, fn editFunc) (*Snapshot, error) {
	var snap *Snapshot
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st order.Store) error {
		o, err := st.GetOrder(ctx, orderID)
		if err != nil {
			return errors.Wrapf(err, "get order %s", orderID)
		}
		if o.Finalized() {
			return errors.Wrapf(order.ErrFinalized, "order %s is %s", o.ID, o.Status)
		}

		data, err := fn(ctx, st, o)
		if err != nil {
			return err
		}

		o.UpdatedAt = s.now()
		if o, err = s.engine.Recalculate(ctx, st, o); err != nil {
			return errors.Wrap(err, "recalculate")
		}
		if data == nil {
			data = map[string]string{}
		}
		data["total"] = o.Total.StringFixed(2)
		if err := s.appendEvent(ctx, st, o.ID, typ, data); err != nil {
			return err
		}

		snap, err = load(ctx, st, o)
		return err
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Debug("Order updated",
		zap.String("order_id", orderID),
		zap.String("event", string(typ)),
		zap.Stringer("total", snap.Order.Total),
	)
	return snap, nil
}

func (s *Service) appendEvent(ctx context.Context, st order.Store, orderID string, typ order.EventType, data map[string]string) error {
	e := &order.Event{
		ID:        s.newID(),
		OrderID:   orderID,
		Type:      typ,
		Actor:     auth.Actor(ctx),
		Data:      data,
		CreatedAt: s.now(),
	}
	if err := st.AppendEvent(ctx, e); err != nil {
		return errors.Wrapf(err, "append %s event", typ)
	}
	return nil
}

func load(ctx context.Context, st order.Store, o *order.Order) (*Snapshot, error) {
	snap := &Snapshot{Order: o}
	var err error
	if snap.Lines, err = st.ListLines(ctx, o.ID); err != nil {
		return nil, errors.Wrap(err, "list lines")
	}
	if snap.Discounts, err = st.ListDiscounts(ctx, o.ID); err != nil {
		return nil, errors.Wrap(err, "list discounts")
	}
	if snap.LineDiscounts, err = st.ListLineDiscounts(ctx, o.ID); err != nil {
		return nil, errors.Wrap(err, "list line discounts")
	}
	if snap.Payments, err = st.ListPayments(ctx, o.ID); err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	if snap.Refunds, err = st.ListRefunds(ctx, o.ID); err != nil {
		return nil, errors.Wrap(err, "list refunds")
	}
	return snap, nil
}

func findLine(lines []*order.Line, id string) (*order.Line, bool) {
	for _, l := range lines {
		if l.ID == id {
			return l, true
		}
	}
	return nil, false
}

func itoa(n int) string { return strconv.Itoa(n) }
