package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/optimistics/storefront/internal/platform/observability"

// CheckoutMetrics records checkout outcomes and charged amounts.
type CheckoutMetrics struct {
	outcomes metric.Int64Counter
	charged  metric.Int64Histogram
	points   metric.Int64Counter
}

// NewCheckoutMetrics registers the checkout instruments on the global meter provider
// unless a meter is supplied.
func NewCheckoutMetrics(meter metric.Meter) (*CheckoutMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	outcomes, err := meter.Int64Counter("storefront.checkout.outcomes",
		metric.WithDescription("Checkout completions by outcome"))
	if err != nil {
		return nil, err
	}
	charged, err := meter.Int64Histogram("storefront.checkout.charged",
		metric.WithDescription("Final charged totals in whole currency units"),
		metric.WithUnit("{NGN}"))
	if err != nil {
		return nil, err
	}
	points, err := meter.Int64Counter("storefront.loyalty.points",
		metric.WithDescription("Loyalty points moved by settlement, split by direction"))
	if err != nil {
		return nil, err
	}
	return &CheckoutMetrics{outcomes: outcomes, charged: charged, points: points}, nil
}

// RecordOutcome counts a checkout completion attempt.
func (m *CheckoutMetrics) RecordOutcome(ctx context.Context, outcome string, total int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.outcomes.Add(ctx, 1, attrs)
	if outcome == "settled" {
		m.charged.Record(ctx, total)
	}
}

// RecordPoints counts earned and redeemed loyalty points.
func (m *CheckoutMetrics) RecordPoints(ctx context.Context, earned, redeemed int64) {
	if m == nil {
		return
	}
	if earned > 0 {
		m.points.Add(ctx, earned, metric.WithAttributes(attribute.String("direction", "earned")))
	}
	if redeemed > 0 {
		m.points.Add(ctx, redeemed, metric.WithAttributes(attribute.String("direction", "redeemed")))
	}
}
