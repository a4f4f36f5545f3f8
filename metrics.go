package plotgen

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    keptCounter   prometheus.Counter
//	    phaseDuration *prometheus.HistogramVec
//	}
//
//	func (p *PrometheusCollector) RecordPhase(phase plotgen.Phase, d time.Duration, err error) {
//	    p.phaseDuration.WithLabelValues(phase.String()).Observe(d.Seconds())
//	}
type MetricsCollector interface {
	// RecordBatch is called after each forward batch has been persisted.
	// entries is the table-0 batch size, bytes the total appended to all streams.
	RecordBatch(entries int, bytes int64, duration time.Duration)

	// RecordSort is called after each table sort.
	RecordSort(table int, records, skipped int64, duration time.Duration)

	// RecordCollation is called after each collation step.
	RecordCollation(table, input, kept int, duration time.Duration)

	// RecordPhase is called when a phase finishes, err is nil if successful.
	RecordPhase(phase Phase, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBatch(int, int64, time.Duration)        {}
func (NoopMetricsCollector) RecordSort(int, int64, int64, time.Duration)  {}
func (NoopMetricsCollector) RecordCollation(int, int, int, time.Duration) {}
func (NoopMetricsCollector) RecordPhase(Phase, time.Duration, error)      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	BatchCount      atomic.Int64
	BatchEntries    atomic.Int64
	BatchBytes      atomic.Int64
	SortCount       atomic.Int64
	SortRecords     atomic.Int64
	SortSkipped     atomic.Int64
	SortTotalNanos  atomic.Int64
	CollationCount  atomic.Int64
	CollationInput  atomic.Int64
	CollationKept   atomic.Int64
	PhaseCount      atomic.Int64
	PhaseErrors     atomic.Int64
	PhaseTotalNanos atomic.Int64
}

// RecordBatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatch(entries int, bytes int64, _ time.Duration) {
	b.BatchCount.Add(1)
	b.BatchEntries.Add(int64(entries))
	b.BatchBytes.Add(bytes)
}

// RecordSort implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSort(_ int, records, skipped int64, duration time.Duration) {
	b.SortCount.Add(1)
	b.SortRecords.Add(records)
	b.SortSkipped.Add(skipped)
	b.SortTotalNanos.Add(duration.Nanoseconds())
}

// RecordCollation implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCollation(_, input, kept int, _ time.Duration) {
	b.CollationCount.Add(1)
	b.CollationInput.Add(int64(input))
	b.CollationKept.Add(int64(kept))
}

// RecordPhase implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPhase(_ Phase, duration time.Duration, err error) {
	b.PhaseCount.Add(1)
	b.PhaseTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PhaseErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		BatchCount:     b.BatchCount.Load(),
		BatchEntries:   b.BatchEntries.Load(),
		BatchBytes:     b.BatchBytes.Load(),
		SortCount:      b.SortCount.Load(),
		SortRecords:    b.SortRecords.Load(),
		SortSkipped:    b.SortSkipped.Load(),
		SortAvgNanos:   b.getAvgSortNanos(),
		CollationCount: b.CollationCount.Load(),
		CollationInput: b.CollationInput.Load(),
		CollationKept:  b.CollationKept.Load(),
		PhaseCount:     b.PhaseCount.Load(),
		PhaseErrors:    b.PhaseErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSortNanos() int64 {
	count := b.SortCount.Load()
	if count == 0 {
		return 0
	}
	return b.SortTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	BatchCount     int64
	BatchEntries   int64
	BatchBytes     int64
	SortCount      int64
	SortRecords    int64
	SortSkipped    int64
	SortAvgNanos   int64
	CollationCount int64
	CollationInput int64
	CollationKept  int64
	PhaseCount     int64
	PhaseErrors    int64
}
