// Package pricing implements the order pricing engine: the discount matcher
// that materializes catalog discounts onto an order, and the totals
// calculator that derives tax rates, discount amounts, per-line discount
// shares and the order aggregates.
//
// Both run synchronously inside the caller's transaction. Neither starts a
// transaction of its own.
package pricing

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/order"
)

const instrumentationName = "github.com/xenking/pos-pricing/internal/domain/pricing"

// Store is the subset of order.Store the engine reads and writes.
type Store interface {
	UpdateOrder(ctx context.Context, o *order.Order) error
	ListLines(ctx context.Context, orderID string) ([]*order.Line, error)
	UpdateLine(ctx context.Context, l *order.Line) error
	ListDiscounts(ctx context.Context, orderID string) ([]*order.Discount, error)
	CreateDiscount(ctx context.Context, d *order.Discount) error
	UpdateDiscount(ctx context.Context, d *order.Discount) error
	DeleteDiscount(ctx context.Context, orderID, id string) error
	ListLineDiscounts(ctx context.Context, orderID string) ([]*order.LineDiscount, error)
	UpdateLineDiscount(ctx context.Context, d *order.LineDiscount) error
}

var _ Store = order.Store(nil)

// Engine prices orders.
type Engine struct {
	discounts discount.Repository
	taxes     catalog.TaxCodeRepository
	customers catalog.CustomerRepository

	now    func() time.Time
	newID  func() string
	tracer trace.Tracer

	recalculations metric.Int64Counter
	autoApplied    metric.Int64Counter
	duration       metric.Float64Histogram
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	now            func() time.Time
	newID          func() string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithClock sets the clock used to evaluate discount activation windows.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator sets the ID generator for auto-applied discounts.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

// WithTracerProvider sets the tracer provider. Defaults to a no-op provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider. Defaults to a no-op provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// NewEngine creates an Engine backed by the given catalog lookups.
func NewEngine(
	discounts discount.Repository,
	taxes catalog.TaxCodeRepository,
	customers catalog.CustomerRepository,
	opts ...Option,
) (*Engine, error) {
	o := options{
		now:            time.Now,
		newID:          uuid.NewString,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	recalculations, err := meter.Int64Counter("pos.pricing.recalculations",
		metric.WithDescription("Number of order recalculations"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create recalculations counter")
	}
	autoApplied, err := meter.Int64Counter("pos.pricing.discounts_auto_applied",
		metric.WithDescription("Number of catalog discounts materialized onto orders"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create auto-applied counter")
	}
	duration, err := meter.Float64Histogram("pos.pricing.recalculation_duration",
		metric.WithDescription("Duration of order recalculations"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create duration histogram")
	}

	return &Engine{
		discounts:      discounts,
		taxes:          taxes,
		customers:      customers,
		now:            o.now,
		newID:          o.newID,
		tracer:         o.tracerProvider.Tracer(instrumentationName),
		recalculations: recalculations,
		autoApplied:    autoApplied,
		duration:       duration,
	}, nil
}

// Recalculate runs the discount matcher and then the totals calculator. It is
// the single entry point used after any change to an order's lines,
// discounts or customer.
func (e *Engine) Recalculate(ctx context.Context, s Store, o *order.Order) (_ *order.Order, rerr error) {
	ctx, span := e.tracer.Start(ctx, "pricing.Recalculate",
		trace.WithAttributes(attribute.String("order.id", o.ID)),
	)
	start := time.Now()
	defer func() {
		result := "ok"
		if rerr != nil {
			result = "error"
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		attrs := metric.WithAttributes(attribute.String("result", result))
		e.recalculations.Add(ctx, 1, attrs)
		e.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
		span.End()
	}()

	if err := e.AutoApply(ctx, s, o); err != nil {
		return nil, errors.Wrap(err, "auto-apply discounts")
	}
	updated, err := e.CalculateTotals(ctx, s, o)
	if err != nil {
		return nil, errors.Wrap(err, "calculate totals")
	}
	return updated, nil
}
