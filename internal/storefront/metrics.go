package storefront

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"finitefield.org/gamified-web/internal/cart"
)

const metricNamespace = "finitefield.org/gamified-web/internal/storefront"

type metrics struct {
	mutations        metric.Int64Counter
	mutationsEnabled bool
	checkouts        metric.Int64Counter
	checkoutsEnabled bool
	sessions         metric.Int64UpDownCounter
	sessionsEnabled  bool
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *metrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	mutations, mutErr := meter.Int64Counter(
		"storefront.cart.mutations",
		metric.WithDescription("Count of cart mutations by operation"),
	)
	if mutErr != nil {
		logger.Warn("storefront: unable to register cart mutation metric", zap.Error(mutErr))
	}

	checkouts, checkoutErr := meter.Int64Counter(
		"storefront.checkouts",
		metric.WithDescription("Count of checkout attempts by outcome"),
	)
	if checkoutErr != nil {
		logger.Warn("storefront: unable to register checkout metric", zap.Error(checkoutErr))
	}

	sessions, sessionErr := meter.Int64UpDownCounter(
		"storefront.sessions.active",
		metric.WithDescription("Visitor sessions currently held in memory"),
	)
	if sessionErr != nil {
		logger.Warn("storefront: unable to register session metric", zap.Error(sessionErr))
	}

	return &metrics{
		mutations:        mutations,
		mutationsEnabled: mutErr == nil,
		checkouts:        checkouts,
		checkoutsEnabled: checkoutErr == nil,
		sessions:         sessions,
		sessionsEnabled:  sessionErr == nil,
	}
}

func (m *metrics) cartMutation(ctx context.Context, op cart.Op) {
	if m == nil || !m.mutationsEnabled {
		return
	}
	m.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", string(op))))
}

func (m *metrics) checkout(ctx context.Context, outcome string) {
	if m == nil || !m.checkoutsEnabled {
		return
	}
	m.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metrics) sessionDelta(ctx context.Context, delta int64) {
	if m == nil || !m.sessionsEnabled || delta == 0 {
		return
	}
	m.sessions.Add(ctx, delta)
}
