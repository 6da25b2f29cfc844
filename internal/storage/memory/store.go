package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/pos-pricing/internal/domain/order"
)

var (
	_ order.Transactor = (*DB)(nil)
	_ order.Store      = (*tx)(nil)
)

// DB is an in-memory order store. Transactions are serialized by a single
// mutex; a failed transaction restores every order it touched and reverts
// its stock adjustments.
type DB struct {
	mu      sync.Mutex
	orders  map[string]*aggregate
	catalog *Catalog
}

// NewDB returns an empty DB whose stock adjustments are applied to c.
func NewDB(c *Catalog) *DB {
	return &DB{
		orders:  make(map[string]*aggregate),
		catalog: c,
	}
}

// WithinTx runs fn with exclusive access to the store.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, s order.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	t := &tx{db: db, touched: make(map[string]*aggregate)}
	if err := fn(ctx, t); err != nil {
		t.rollback()
		return err
	}
	return nil
}

// Events returns the audit trail of an order in append order.
func (db *DB) Events(orderID string) []order.Event {
	db.mu.Lock()
	defer db.mu.Unlock()

	a, ok := db.orders[orderID]
	if !ok {
		return nil
	}
	out := make([]order.Event, len(a.events))
	for i, e := range a.events {
		e.Data = maps.Clone(e.Data)
		out[i] = e
	}
	return out
}

// aggregate is everything stored for one order.
type aggregate struct {
	order         order.Order
	lines         []*order.Line
	discounts     []*order.Discount
	lineDiscounts []*order.LineDiscount
	payments      []order.Payment
	refunds       []order.Refund
	events        []order.Event
}

func (a *aggregate) clone() *aggregate {
	c := &aggregate{
		order:    copyOrder(&a.order),
		payments: slices.Clone(a.payments),
		refunds:  make([]order.Refund, len(a.refunds)),
		events:   slices.Clone(a.events),
	}
	for _, l := range a.lines {
		c.lines = append(c.lines, copyLine(l))
	}
	for _, d := range a.discounts {
		c.discounts = append(c.discounts, copyDiscount(d))
	}
	for _, ld := range a.lineDiscounts {
		cp := *ld
		c.lineDiscounts = append(c.lineDiscounts, &cp)
	}
	for i, r := range a.refunds {
		r.Lines = slices.Clone(r.Lines)
		c.refunds[i] = r
	}
	return c
}

type stockChange struct {
	productID string
	delta     int
}

type tx struct {
	db *DB
	// touched holds the pre-transaction state of every order written, nil
	// for orders created inside the transaction.
	touched map[string]*aggregate
	stock   []stockChange
}

func (t *tx) rollback() {
	for id, a := range t.touched {
		if a == nil {
			delete(t.db.orders, id)
			continue
		}
		t.db.orders[id] = a
	}
	for i := len(t.stock) - 1; i >= 0; i-- {
		c := t.stock[i]
		_ = t.db.catalog.adjustStock(c.productID, -c.delta)
	}
}

// read returns the stored aggregate without recording it for rollback.
func (t *tx) read(orderID string) (*aggregate, error) {
	a, ok := t.db.orders[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	return a, nil
}

// write returns the stored aggregate after saving its current state for
// rollback.
func (t *tx) write(orderID string) (*aggregate, error) {
	a, err := t.read(orderID)
	if err != nil {
		return nil, err
	}
	if _, seen := t.touched[orderID]; !seen {
		t.touched[orderID] = a.clone()
	}
	return a, nil
}

func (t *tx) GetOrder(_ context.Context, id string) (*order.Order, error) {
	a, err := t.read(id)
	if err != nil {
		return nil, err
	}
	o := copyOrder(&a.order)
	return &o, nil
}

func (t *tx) CreateOrder(_ context.Context, o *order.Order) error {
	if err := validateOrder(o); err != nil {
		return err
	}
	if _, exists := t.db.orders[o.ID]; exists {
		return errors.Errorf("order %s already exists", o.ID)
	}
	if _, seen := t.touched[o.ID]; !seen {
		t.touched[o.ID] = nil
	}
	t.db.orders[o.ID] = &aggregate{order: copyOrder(o)}
	return nil
}

func (t *tx) UpdateOrder(_ context.Context, o *order.Order) error {
	if err := validateOrder(o); err != nil {
		return err
	}
	a, err := t.write(o.ID)
	if err != nil {
		return err
	}
	a.order = copyOrder(o)
	return nil
}

func (t *tx) ListLines(_ context.Context, orderID string) ([]*order.Line, error) {
	a, err := t.read(orderID)
	if err != nil {
		return nil, err
	}
	out := make([]*order.Line, len(a.lines))
	for i, l := range a.lines {
		out[i] = copyLine(l)
	}
	order.SortLines(out)
	return out, nil
}

func (t *tx) CreateLine(_ context.Context, l *order.Line) error {
	if err := l.Validate(); err != nil {
		return err
	}
	a, err := t.write(l.OrderID)
	if err != nil {
		return err
	}
	if a.lineIndex(l.ID) >= 0 {
		return errors.Errorf("order line %s already exists", l.ID)
	}
	a.lines = append(a.lines, copyLine(l))
	return nil
}

func (t *tx) UpdateLine(_ context.Context, l *order.Line) error {
	if err := l.Validate(); err != nil {
		return err
	}
	a, err := t.write(l.OrderID)
	if err != nil {
		return err
	}
	i := a.lineIndex(l.ID)
	if i < 0 {
		return order.ErrLineNotFound
	}
	a.lines[i] = copyLine(l)
	return nil
}

func (t *tx) DeleteLine(_ context.Context, orderID, lineID string) error {
	a, err := t.write(orderID)
	if err != nil {
		return err
	}
	i := a.lineIndex(lineID)
	if i < 0 {
		return order.ErrLineNotFound
	}
	a.lines = slices.Delete(a.lines, i, i+1)
	for _, d := range a.discounts {
		d.LineIDs = slices.DeleteFunc(d.LineIDs, func(id string) bool { return id == lineID })
	}
	a.lineDiscounts = slices.DeleteFunc(a.lineDiscounts, func(ld *order.LineDiscount) bool {
		return ld.LineID == lineID
	})
	return nil
}

func (t *tx) ListDiscounts(_ context.Context, orderID string) ([]*order.Discount, error) {
	a, err := t.read(orderID)
	if err != nil {
		return nil, err
	}
	out := make([]*order.Discount, len(a.discounts))
	for i, d := range a.discounts {
		out[i] = copyDiscount(d)
	}
	return out, nil
}

func (t *tx) CreateDiscount(_ context.Context, d *order.Discount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	a, err := t.write(d.OrderID)
	if err != nil {
		return err
	}
	if a.discountIndex(d.ID) >= 0 {
		return errors.Errorf("order discount %s already exists", d.ID)
	}
	for _, lineID := range d.LineIDs {
		if a.lineIndex(lineID) < 0 {
			return errors.Wrapf(order.ErrLineNotFound, "join line %s", lineID)
		}
	}
	a.discounts = append(a.discounts, copyDiscount(d))
	return nil
}

func (t *tx) UpdateDiscount(_ context.Context, d *order.Discount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	a, err := t.write(d.OrderID)
	if err != nil {
		return err
	}
	i := a.discountIndex(d.ID)
	if i < 0 {
		return order.ErrDiscountNotFound
	}
	a.discounts[i] = copyDiscount(d)
	return nil
}

func (t *tx) DeleteDiscount(_ context.Context, orderID, id string) error {
	a, err := t.write(orderID)
	if err != nil {
		return err
	}
	i := a.discountIndex(id)
	if i < 0 {
		return order.ErrDiscountNotFound
	}
	a.discounts = slices.Delete(a.discounts, i, i+1)
	a.lineDiscounts = slices.DeleteFunc(a.lineDiscounts, func(ld *order.LineDiscount) bool {
		return ld.OrderDiscountID == id
	})
	return nil
}

func (t *tx) ListLineDiscounts(_ context.Context, orderID string) ([]*order.LineDiscount, error) {
	a, err := t.read(orderID)
	if err != nil {
		return nil, err
	}
	out := make([]*order.LineDiscount, len(a.lineDiscounts))
	for i, ld := range a.lineDiscounts {
		cp := *ld
		out[i] = &cp
	}
	return out, nil
}

func (t *tx) CreateLineDiscount(_ context.Context, d *order.LineDiscount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	a, err := t.write(d.OrderID)
	if err != nil {
		return err
	}
	if a.lineIndex(d.LineID) < 0 {
		return order.ErrLineNotFound
	}
	if a.discountIndex(d.OrderDiscountID) < 0 {
		return order.ErrDiscountNotFound
	}
	cp := *d
	a.lineDiscounts = append(a.lineDiscounts, &cp)
	return nil
}

func (t *tx) UpdateLineDiscount(_ context.Context, d *order.LineDiscount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	a, err := t.write(d.OrderID)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(a.lineDiscounts, func(ld *order.LineDiscount) bool { return ld.ID == d.ID })
	if i < 0 {
		return order.ErrLineDiscountNotFound
	}
	cp := *d
	a.lineDiscounts[i] = &cp
	return nil
}

func (t *tx) ListPayments(_ context.Context, orderID string) ([]order.Payment, error) {
	a, err := t.read(orderID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(a.payments), nil
}

func (t *tx) CreatePayment(_ context.Context, p *order.Payment) error {
	if !p.Amount.IsPositive() {
		return &order.ValidationError{Entity: "payment", Field: "amount", Message: "must be greater than 0"}
	}
	a, err := t.write(p.OrderID)
	if err != nil {
		return err
	}
	a.payments = append(a.payments, *p)
	return nil
}

func (t *tx) ListRefunds(_ context.Context, orderID string) ([]order.Refund, error) {
	a, err := t.read(orderID)
	if err != nil {
		return nil, err
	}
	out := make([]order.Refund, len(a.refunds))
	for i, r := range a.refunds {
		r.Lines = slices.Clone(r.Lines)
		out[i] = r
	}
	return out, nil
}

func (t *tx) CreateRefund(_ context.Context, r *order.Refund) error {
	if r.Amount.IsNegative() {
		return &order.ValidationError{Entity: "refund", Field: "amount", Message: "must not be negative"}
	}
	a, err := t.write(r.OrderID)
	if err != nil {
		return err
	}
	cp := *r
	cp.Lines = slices.Clone(r.Lines)
	a.refunds = append(a.refunds, cp)
	return nil
}

func (t *tx) AdjustStock(_ context.Context, productID string, delta int) error {
	if err := t.db.catalog.adjustStock(productID, delta); err != nil {
		return err
	}
	t.stock = append(t.stock, stockChange{productID: productID, delta: delta})
	return nil
}

func (t *tx) AppendEvent(_ context.Context, e *order.Event) error {
	a, err := t.write(e.OrderID)
	if err != nil {
		return err
	}
	cp := *e
	cp.Data = maps.Clone(e.Data)
	a.events = append(a.events, cp)
	return nil
}

func (a *aggregate) lineIndex(id string) int {
	return slices.IndexFunc(a.lines, func(l *order.Line) bool { return l.ID == id })
}

func (a *aggregate) discountIndex(id string) int {
	return slices.IndexFunc(a.discounts, func(d *order.Discount) bool { return d.ID == id })
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

func copyOrder(o *order.Order) order.Order {
	c := *o
	c.Overrides = o.Overrides.Clone()
	if o.CompletedAt != nil {
		at := *o.CompletedAt
		c.CompletedAt = &at
	}
	return c
}

func copyLine(l *order.Line) *order.Line {
	c := *l
	return &c
}

func copyDiscount(d *order.Discount) *order.Discount {
	c := *d
	c.LineIDs = slices.Clone(d.LineIDs)
	return &c
}
