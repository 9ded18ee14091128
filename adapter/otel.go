package adapter

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/srediag/vsoc-shm/pkg/layout"
)

const meterName = "github.com/srediag/vsoc-shm/adapter"

// OTelObserver records handshakes with OpenTelemetry instruments.
type OTelObserver struct {
	stages   metric.Int64Counter
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

// NewOTelObserver creates the instruments on meter. A nil meter records
// nothing.
func NewOTelObserver(meter metric.Meter) (*OTelObserver, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(meterName)
	}
	stages, err := meter.Int64Counter("vsoc.e2e.stage_changes",
		metric.WithDescription("Stages published by handshake sides."))
	if err != nil {
		return nil, err
	}
	runs, err := meter.Int64Counter("vsoc.e2e.runs",
		metric.WithDescription("Finished handshake runs."))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("vsoc.e2e.run_duration",
		metric.WithDescription("Duration of handshake runs."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &OTelObserver{stages: stages, runs: runs, duration: duration}, nil
}

func (o *OTelObserver) StageChanged(region string, side layout.Side, stage layout.Stage) {
	o.stages.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("region", region),
		attribute.String("side", side.String()),
		attribute.String("stage", stage.String()),
	))
}

func (o *OTelObserver) RunFinished(region string, side layout.Side, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("region", region),
		attribute.String("side", side.String()),
		attribute.String("result", ResultLabel(err)),
	)
	o.runs.Add(context.Background(), 1, attrs)
	o.duration.Record(context.Background(), elapsed.Seconds(), attrs)
}
