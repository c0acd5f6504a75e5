package workflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "callpanel/workflow"

// metrics holds the engine's instruments. Operations are counted by name and
// outcome code so lock contention shows up as code=locked.
type metrics struct {
	operations metric.Int64Counter
	duration   metric.Float64Histogram
	swept      metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	var (
		m   metrics
		err error
	)
	m.operations, err = meter.Int64Counter("callpanel.workflow.operations",
		metric.WithDescription("Workflow operations by name and outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}
	m.duration, err = meter.Float64Histogram("callpanel.workflow.duration",
		metric.WithDescription("Workflow operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	if err != nil {
		return nil, err
	}
	m.swept, err = meter.Int64Counter("callpanel.lease.expired",
		metric.WithDescription("Expired leases removed by sweeps"),
		metric.WithUnit("{lease}"),
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *metrics) record(ctx context.Context, op string, started time.Time, err error) {
	if m == nil {
		return
	}
	code := "ok"
	if err != nil {
		code = CodeOf(err)
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("code", code),
	)
	m.operations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, time.Since(started).Seconds(), metric.WithAttributes(attribute.String("operation", op)))
}

func (m *metrics) expired(ctx context.Context, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.swept.Add(ctx, count)
}
