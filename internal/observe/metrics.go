// Package observe holds the detector's OpenTelemetry metric instruments and
// the Prometheus bridge that exposes them on /metrics.
//
// Tests should build Metrics from their own MeterProvider with NewMetrics;
// Nop returns instruments that record nothing.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope of every detector metric.
const meterName = "waterdetect"

// Metrics holds all metric instruments. The OTel types handle their own
// synchronisation so a Metrics value may be shared.
type Metrics struct {
	// Windows counts completed spectrogram windows. Attribute: phase.
	Windows metric.Int64Counter

	// Decisions counts classifier outputs. Attribute: result (air|water).
	Decisions metric.Int64Counter

	// StateChanges counts hysteresis transitions. Attribute: state.
	StateChanges metric.Int64Counter

	// Submerged is 1 while the device is reported submerged.
	Submerged metric.Int64Gauge

	// WindowDuration tracks the time spent closing a window (seconds).
	WindowDuration metric.Float64Histogram
}

var durationBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Windows, err = m.Int64Counter("waterdetect.windows",
		metric.WithDescription("Completed spectrogram windows."),
	); err != nil {
		return nil, err
	}
	if met.Decisions, err = m.Int64Counter("waterdetect.decisions",
		metric.WithDescription("Classifier decisions by result."),
	); err != nil {
		return nil, err
	}
	if met.StateChanges, err = m.Int64Counter("waterdetect.state_changes",
		metric.WithDescription("Submersion state transitions after hysteresis."),
	); err != nil {
		return nil, err
	}
	if met.Submerged, err = m.Int64Gauge("waterdetect.submerged",
		metric.WithDescription("1 while the device is reported submerged."),
	); err != nil {
		return nil, err
	}
	if met.WindowDuration, err = m.Float64Histogram("waterdetect.window.duration",
		metric.WithDescription("Time spent closing a window and classifying it."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Nop returns metrics backed by a no-op provider.
func Nop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

// RecordWindow counts one completed window in phase.
func (m *Metrics) RecordWindow(ctx context.Context, phase string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("phase", phase))
	m.Windows.Add(ctx, 1, attrs)
	m.WindowDuration.Record(ctx, seconds, attrs)
}

// RecordDecision counts one classifier output.
func (m *Metrics) RecordDecision(ctx context.Context, water bool) {
	m.Decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result(water))))
}

// RecordStateChange counts a transition and updates the submerged gauge.
func (m *Metrics) RecordStateChange(ctx context.Context, submerged bool) {
	m.StateChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("state", result(submerged))))
	var v int64
	if submerged {
		v = 1
	}
	m.Submerged.Record(ctx, v)
}

func result(water bool) string {
	if water {
		return "water"
	}
	return "air"
}
