package emitter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/auroratag/pkg/resource"
)

// MetricsEmitter records runs as OTEL metrics. The exporter (OTLP push from
// Lambda, Prometheus pull from the daemon) is chosen by the meter provider.
type MetricsEmitter struct {
	meter metric.Meter

	outcomesTotal    metric.Int64Counter
	removedTotal     metric.Int64Counter
	orphansTotal     metric.Int64Counter
	errorsTotal      metric.Int64Counter
	runDuration      metric.Float64Histogram
	lastSuccessGauge metric.Float64ObservableGauge

	// State for observable gauge
	mu            sync.RWMutex
	lastSuccessAt map[string]time.Time
}

// NewMetricsEmitter creates a metrics emitter on meter.
func NewMetricsEmitter(meter metric.Meter) (*MetricsEmitter, error) {
	e := &MetricsEmitter{
		meter:         meter,
		lastSuccessAt: make(map[string]time.Time),
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return e, nil
}

func (e *MetricsEmitter) initMetrics() error {
	var err error

	e.outcomesTotal, err = e.meter.Int64Counter(
		"auroratag_outcomes_total",
		metric.WithDescription("Resources handled, by kind and action"),
	)
	if err != nil {
		return fmt.Errorf("create outcomes counter: %w", err)
	}

	e.removedTotal, err = e.meter.Int64Counter(
		"auroratag_tags_removed_total",
		metric.WithDescription("Instance tags removed before propagation"),
	)
	if err != nil {
		return fmt.Errorf("create tags_removed counter: %w", err)
	}

	e.orphansTotal, err = e.meter.Int64Counter(
		"auroratag_orphans_total",
		metric.WithDescription("Instance notifications for instances outside any cluster"),
	)
	if err != nil {
		return fmt.Errorf("create orphans counter: %w", err)
	}

	e.errorsTotal, err = e.meter.Int64Counter(
		"auroratag_run_errors_total",
		metric.WithDescription("Runs that failed"),
	)
	if err != nil {
		return fmt.Errorf("create run_errors counter: %w", err)
	}

	e.runDuration, err = e.meter.Float64Histogram(
		"auroratag_run_duration_seconds",
		metric.WithDescription("Time taken by a run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create run_duration histogram: %w", err)
	}

	e.lastSuccessGauge, err = e.meter.Float64ObservableGauge(
		"auroratag_last_success_timestamp_seconds",
		metric.WithDescription("Unix time of the last successful run"),
		metric.WithFloat64Callback(e.observeLastSuccess),
	)
	if err != nil {
		return fmt.Errorf("create last_success gauge: %w", err)
	}

	return nil
}

// EmitSweep records the sweep as metrics.
func (e *MetricsEmitter) EmitSweep(ctx context.Context, report resource.SweepReport, runErr error) error {
	opAttr := attribute.String("operation", OpSweep)
	e.runDuration.Record(ctx, report.Duration.Seconds(), metric.WithAttributes(opAttr, attribute.String("mode", report.Mode)))

	for _, o := range report.Outcomes {
		e.recordOutcome(ctx, OpSweep, o)
	}

	if runErr != nil {
		e.errorsTotal.Add(ctx, 1, metric.WithAttributes(opAttr))
		return nil
	}
	e.markSuccess(OpSweep)
	return nil
}

// EmitPropagation records the propagation as metrics.
func (e *MetricsEmitter) EmitPropagation(ctx context.Context, report resource.PropagationReport, runErr error) error {
	opAttr := attribute.String("operation", OpPropagate)
	e.runDuration.Record(ctx, report.Duration.Seconds(), metric.WithAttributes(opAttr))

	if runErr != nil {
		e.errorsTotal.Add(ctx, 1, metric.WithAttributes(opAttr))
		return nil
	}

	if report.Orphan {
		e.orphansTotal.Add(ctx, 1)
	}
	if report.Outcome.Action == resource.ActionReplaced {
		e.removedTotal.Add(ctx, int64(len(report.Diff.Remove)))
	}
	e.recordOutcome(ctx, OpPropagate, report.Outcome)
	e.markSuccess(OpPropagate)
	return nil
}

func (e *MetricsEmitter) recordOutcome(ctx context.Context, op string, o resource.Outcome) {
	e.outcomesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("kind", string(o.Kind)),
		attribute.String("action", string(o.Action)),
	))
}

func (e *MetricsEmitter) markSuccess(op string) {
	e.mu.Lock()
	e.lastSuccessAt[op] = time.Now()
	e.mu.Unlock()
}

// observeLastSuccess is the callback for the last_success gauge.
func (e *MetricsEmitter) observeLastSuccess(_ context.Context, o metric.Float64Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for op, ts := range e.lastSuccessAt {
		o.Observe(float64(ts.UnixNano())/1e9, metric.WithAttributes(attribute.String("operation", op)))
	}
	return nil
}

// Close is a no-op; the meter provider owns exporter shutdown.
func (e *MetricsEmitter) Close() error {
	return nil
}
