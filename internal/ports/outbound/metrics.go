package outbound

import (
	"context"
	"time"
)

// MetricsRecorder records operational telemetry. Implementations must be
// safe for concurrent use; recording must never fail the calling flow.
type MetricsRecorder interface {
	// RecordOrder records a completed (or failed) order with its duration.
	// direction is an entity.OrderDirection value; status is "ok" or an
	// error class.
	RecordOrder(ctx context.Context, direction, status string, duration time.Duration)

	// RecordRegistryMutation records an administrative operation outcome.
	RecordRegistryMutation(ctx context.Context, operation, status string)
}
