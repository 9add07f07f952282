package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple services in one
// process do not collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	enqueueTotal  *prometheus.CounterVec
	scanTotal     *prometheus.CounterVec
	scanQueued    *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	workerTotal   *prometheus.CounterVec
	commentTotal  *prometheus.CounterVec
	queueLength   prometheus.Gauge
	ledgerEntries prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		enqueueTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "investigator_enqueue_total",
			Help: "Enqueue attempts by result.",
		}, []string{"result", "reinvestigation"}),
		scanTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "investigator_scan_total",
			Help: "Catch-up scans by outcome.",
		}, []string{"outcome"}),
		scanQueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "investigator_scan_queued_total",
			Help: "Issues queued by catch-up scans.",
		}, []string{"kind"}),
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "investigator_scan_duration_seconds",
			Help:    "Duration of catch-up scans including the issue source fetch.",
			Buckets: prometheus.DefBuckets,
		}),
		workerTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "investigator_worker_ensure_total",
			Help: "Worker supervisor decisions.",
		}, []string{"result"}),
		commentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "investigator_comment_trigger_total",
			Help: "Comment triggers by outcome.",
		}, []string{"status", "reason"}),
		queueLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "investigator_queue_length",
			Help: "Pending queue items at the last observation.",
		}),
		ledgerEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "investigator_ledger_entries",
			Help: "Investigated issues at the last observation.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Observe* and Set* are no-ops on a nil *Metrics.

func (m *Metrics) ObserveEnqueue(result string, reinvestigation bool) {
	if m == nil {
		return
	}
	label := "false"
	if reinvestigation {
		label = "true"
	}
	m.enqueueTotal.WithLabelValues(result, label).Inc()
}

func (m *Metrics) ObserveScan(outcome string, newCount int, reinvestigate int, seconds float64) {
	if m == nil {
		return
	}
	m.scanTotal.WithLabelValues(outcome).Inc()
	m.scanQueued.WithLabelValues("new").Add(float64(newCount))
	m.scanQueued.WithLabelValues("reinvestigate").Add(float64(reinvestigate))
	m.scanDuration.Observe(seconds)
}

func (m *Metrics) ObserveWorker(result string) {
	if m == nil {
		return
	}
	m.workerTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveComment(status string, reason string) {
	if m == nil {
		return
	}
	m.commentTotal.WithLabelValues(status, reason).Inc()
}

func (m *Metrics) SetQueueLength(n int) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(n))
}

func (m *Metrics) SetLedgerEntries(n int) {
	if m == nil {
		return
	}
	m.ledgerEntries.Set(float64(n))
}
