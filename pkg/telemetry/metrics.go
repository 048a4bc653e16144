package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus observability primitives for the reconciliation engine.
type Metrics struct {
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	ordersReconciled prometheus.Counter
	lineFacts        prometheus.Counter
	findingsTotal    *prometheus.CounterVec
	snapshotRows     *prometheus.GaugeVec
	pendingRuns      prometheus.Gauge
	monthsProduced   prometheus.Gauge
}

// NewMetrics registers and returns Prometheus metrics for the engine.
func NewMetrics() *Metrics {
	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_reconciliation_runs_total",
		Help: "Reconciliation runs by terminal status.",
	}, []string{"status"})

	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tally_reconciliation_run_duration_seconds",
		Help:    "Reconciliation run durations by terminal status.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"status"})

	ordersReconciled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tally_orders_reconciled_total",
		Help: "Orders turned into facts across all runs.",
	})

	lineFacts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tally_line_facts_total",
		Help: "Order line facts produced across all runs.",
	})

	findingsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_data_quality_findings_total",
		Help: "Data quality findings by code and severity.",
	}, []string{"code", "severity"})

	snapshotRows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tally_snapshot_rows",
		Help: "Source rows loaded in the most recent snapshot, per table.",
	}, []string{"table"})

	pendingRuns := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tally_pending_runs",
		Help: "Reconciliation runs waiting to be claimed.",
	})

	monthsProduced := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tally_monthly_summaries",
		Help: "Monthly summary rows produced by the most recent run.",
	})

	prometheus.MustRegister(
		runsTotal,
		runDuration,
		ordersReconciled,
		lineFacts,
		findingsTotal,
		snapshotRows,
		pendingRuns,
		monthsProduced,
	)

	return &Metrics{
		runsTotal:        runsTotal,
		runDuration:      runDuration,
		ordersReconciled: ordersReconciled,
		lineFacts:        lineFacts,
		findingsTotal:    findingsTotal,
		snapshotRows:     snapshotRows,
		pendingRuns:      pendingRuns,
		monthsProduced:   monthsProduced,
	}
}

// ObserveRun records one finished run with its terminal status and duration.
func (m *Metrics) ObserveRun(status string, duration time.Duration) {
	if m == nil {
		return
	}
	statusLabel := sanitizeLabel(status)
	m.runsTotal.WithLabelValues(statusLabel).Inc()
	m.runDuration.WithLabelValues(statusLabel).Observe(duration.Seconds())
}

// AddOrdersReconciled increments the order fact counter.
func (m *Metrics) AddOrdersReconciled(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.ordersReconciled.Add(float64(count))
}

// AddLineFacts increments the line fact counter.
func (m *Metrics) AddLineFacts(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.lineFacts.Add(float64(count))
}

// RecordFinding counts a data quality finding by code and severity.
func (m *Metrics) RecordFinding(code, severity string) {
	if m == nil {
		return
	}
	m.findingsTotal.WithLabelValues(sanitizeLabel(code), sanitizeLabel(severity)).Inc()
}

// SetSnapshotRows records how many rows a source table contributed to the snapshot.
func (m *Metrics) SetSnapshotRows(table string, value float64) {
	if m == nil {
		return
	}
	m.snapshotRows.WithLabelValues(sanitizeLabel(table)).Set(value)
}

// SetPendingRuns updates the run backlog gauge.
func (m *Metrics) SetPendingRuns(value float64) {
	if m == nil {
		return
	}
	m.pendingRuns.Set(value)
}

// SetMonthsProduced records the number of monthly summary rows of the latest run.
func (m *Metrics) SetMonthsProduced(value float64) {
	if m == nil {
		return
	}
	m.monthsProduced.Set(value)
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
