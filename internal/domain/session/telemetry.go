package session

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
)

const instrumentationName = "github.com/xenking/storefront/internal/domain/session"

var (
	_ cart.Observer  = (*Telemetry)(nil)
	_ order.Observer = (*Telemetry)(nil)
)

// Telemetry records cart, merge and checkout activity. A nil *Telemetry is
// valid and records nothing.
type Telemetry struct {
	tracer      trace.Tracer
	mutations   metric.Int64Counter
	merges      metric.Int64Counter
	mergedUnits metric.Int64Counter
	orders      metric.Int64Counter
	orderUnits  metric.Int64Counter
}

// NewTelemetry creates the session instruments.
func NewTelemetry(mp metric.MeterProvider, tp trace.TracerProvider) (*Telemetry, error) {
	meter := mp.Meter(instrumentationName)
	t := &Telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	if t.mutations, err = meter.Int64Counter("storefront.cart.mutations",
		metric.WithDescription("Cart mutations applied"),
	); err != nil {
		return nil, errors.Wrap(err, "cart mutations counter")
	}
	if t.merges, err = meter.Int64Counter("storefront.cart.merges",
		metric.WithDescription("Device carts merged into identity carts on sign-in"),
	); err != nil {
		return nil, errors.Wrap(err, "cart merges counter")
	}
	if t.mergedUnits, err = meter.Int64Counter("storefront.cart.merged_units",
		metric.WithDescription("Units moved from device carts on sign-in"),
	); err != nil {
		return nil, errors.Wrap(err, "merged units counter")
	}
	if t.orders, err = meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders placed, including idempotent replays"),
	); err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	if t.orderUnits, err = meter.Int64Counter("storefront.orders.units",
		metric.WithDescription("Units ordered"),
	); err != nil {
		return nil, errors.Wrap(err, "order units counter")
	}
	return t, nil
}

// CartMutated implements cart.Observer.
func (t *Telemetry) CartMutated(ctx context.Context, op string, _ *cart.Cart) {
	if t == nil {
		return
	}
	t.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// OrderPlaced implements order.Observer.
func (t *Telemetry) OrderPlaced(ctx context.Context, o *order.Order, replayed bool) {
	if t == nil {
		return
	}
	t.orders.Add(ctx, 1, metric.WithAttributes(attribute.Bool("replayed", replayed)))
	if !replayed {
		t.orderUnits.Add(ctx, int64(o.Count()))
	}
}

func (t *Telemetry) startMerge(ctx context.Context, uid string) (context.Context, func(error)) {
	if t == nil {
		return ctx, func(error) {}
	}
	ctx, span := t.tracer.Start(ctx, "session.merge", trace.WithAttributes(attribute.String("uid", uid)))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func (t *Telemetry) merged(ctx context.Context, units int) {
	if t == nil {
		return
	}
	t.merges.Add(ctx, 1)
	t.mergedUnits.Add(ctx, int64(units))
}
