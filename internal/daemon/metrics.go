package daemon

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DaemonMetrics holds operational metrics using OTEL semantic conventions
type DaemonMetrics struct {
	cycles        metric.Int64Counter
	cycleDuration metric.Float64Histogram
	sweeps        metric.Int64Counter
	journalFiles  metric.Int64Counter
}

// NewDaemonMetrics creates daemon metrics on the given meter. A nil meter
// falls back to the global meter provider.
func NewDaemonMetrics(meter metric.Meter) (*DaemonMetrics, error) {
	if meter == nil {
		meter = otel.Meter("vacuum.daemon")
	}

	cycles, err := meter.Int64Counter(
		"vacuum.daemon.cycles",
		metric.WithDescription("Number of daemon sweep cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	cycleDuration, err := meter.Float64Histogram(
		"vacuum.daemon.cycle.duration",
		metric.WithDescription("Duration of a full sweep cycle"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	sweeps, err := meter.Int64Counter(
		"vacuum.daemon.sweeps",
		metric.WithDescription("Number of sweep runs by outcome"),
		metric.WithUnit("{sweep}"),
	)
	if err != nil {
		return nil, err
	}

	journalFiles, err := meter.Int64Counter(
		"vacuum.journal.files_removed",
		metric.WithDescription("Number of expired journal files removed"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, err
	}

	return &DaemonMetrics{
		cycles:        cycles,
		cycleDuration: cycleDuration,
		sweeps:        sweeps,
		journalFiles:  journalFiles,
	}, nil
}

// RecordCycle records a completed cycle with its status and duration.
func (m *DaemonMetrics) RecordCycle(ctx context.Context, status string, durationSeconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.cycles.Add(ctx, 1, attrs)
	m.cycleDuration.Record(ctx, durationSeconds, attrs)
}

// RecordSweep records a single sweep run.
func (m *DaemonMetrics) RecordSweep(ctx context.Context, sweep, status string) {
	m.sweeps.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("sweep", sweep),
			attribute.String("status", status),
		),
	)
}

// RecordJournalCleanup records journal files removed by retention.
func (m *DaemonMetrics) RecordJournalCleanup(ctx context.Context, removed int) {
	if removed <= 0 {
		return
	}
	m.journalFiles.Add(ctx, int64(removed))
}
