package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OrderMetrics holds the order pipeline counters. The zero value and nil receivers are no-ops.
type OrderMetrics struct {
	created     metric.Int64Counter
	transitions metric.Int64Counter
	conflicts   metric.Int64Counter
}

// NewOrderMetrics registers the counters against the global meter provider.
func NewOrderMetrics() (*OrderMetrics, error) {
	return NewOrderMetricsWithMeter(otel.Meter(instrumentation))
}

// NewOrderMetricsWithMeter registers the counters against meter.
func NewOrderMetricsWithMeter(meter metric.Meter) (*OrderMetrics, error) {
	created, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Orders committed at checkout"))
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("orders.transitions",
		metric.WithDescription("Committed order status transitions"))
	if err != nil {
		return nil, err
	}
	conflicts, err := meter.Int64Counter("stock.conflicts",
		metric.WithDescription("Checkouts or adjustments rejected for insufficient stock"))
	if err != nil {
		return nil, err
	}
	return &OrderMetrics{created: created, transitions: transitions, conflicts: conflicts}, nil
}

// OrderCreated counts one committed order for the seller.
func (m *OrderMetrics) OrderCreated(ctx context.Context, sellerID string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.Add(ctx, 1, metric.WithAttributes(attribute.String("seller_id", sellerID)))
}

// Transition counts one committed status change.
func (m *OrderMetrics) Transition(ctx context.Context, from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// StockConflict counts one rejected stock decrement.
func (m *OrderMetrics) StockConflict(ctx context.Context, productID string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("product_id", productID)))
}
