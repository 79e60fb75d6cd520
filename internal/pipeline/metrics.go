package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/loqalabs/jarvis/internal/pipeline"

// Metrics are the cycle instruments exported through the runtime meter
// provider.
type Metrics struct {
	cycles   metric.Int64Counter
	stops    metric.Int64Counter
	duration metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	cycles, err := meter.Int64Counter("jarvis.cycles",
		metric.WithDescription("Completed assistant cycles by outcome"))
	if err != nil {
		return nil, err
	}
	stops, err := meter.Int64Counter("jarvis.capture.stops",
		metric.WithDescription("Recording stops by reason"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("jarvis.stage.duration",
		metric.WithDescription("Stage latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{cycles: cycles, stops: stops, duration: duration}, nil
}

func (m *Metrics) cycle(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) stop(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.stops.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) stage(ctx context.Context, stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}
