package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bridgefi/mxbridge/internal/ports/outbound"
)

// Compile-time check that Metrics implements outbound.MetricsRecorder
var _ outbound.MetricsRecorder = (*Metrics)(nil)

// Metrics implements the MetricsRecorder interface using OpenTelemetry.
type Metrics struct {
	orderDuration     metric.Float64Histogram
	ordersExecuted    metric.Int64Counter
	registryMutations metric.Int64Counter
}

// NewMetrics creates a new OpenTelemetry metrics recorder.
// meterName should typically be the package name or service name.
func NewMetrics(meterName string) (*Metrics, error) {
	meter := otel.Meter(meterName)

	duration, err := meter.Float64Histogram(
		"order_duration_seconds",
		metric.WithDescription("Time taken to execute an exchange order"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create order_duration_seconds histogram: %w", err)
	}

	orders, err := meter.Int64Counter(
		"orders_executed_total",
		metric.WithDescription("Total number of exchange orders, by direction and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orders_executed_total counter: %w", err)
	}

	mutations, err := meter.Int64Counter(
		"registry_mutations_total",
		metric.WithDescription("Total number of registry mutations, by operation and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry_mutations_total counter: %w", err)
	}

	return &Metrics{
		orderDuration:     duration,
		ordersExecuted:    orders,
		registryMutations: mutations,
	}, nil
}

// RecordOrder records one order execution, successful or not.
func (m *Metrics) RecordOrder(ctx context.Context, direction, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("status", status),
	)
	m.ordersExecuted.Add(ctx, 1, attrs)
	m.orderDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRegistryMutation records one administrative mutation attempt.
func (m *Metrics) RecordRegistryMutation(ctx context.Context, operation, status string) {
	m.registryMutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}
