package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains metrics for the image record state machine.
type PipelineMetrics struct {
	RecordsTotal     *prometheus.CounterVec
	RecordDuration   *prometheus.HistogramVec
	StageErrors      *prometheus.CounterVec
	ActiveRecords    prometheus.Gauge
	DownloadBytes    prometheus.Histogram
	SideEffectsTotal *prometheus.CounterVec
	AlertsTotal      prometheus.Counter
	registry         *prometheus.Registry
}

// NewPipelineMetrics creates and registers pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafnet_pipeline_records_total",
			Help: "Total number of record events handled, partitioned by outcome",
		},
		[]string{"outcome"},
	)
	m.RecordDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leafnet_pipeline_record_duration_seconds",
			Help:    "Time from claim to terminal state for a record",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"outcome"},
	)
	m.StageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafnet_pipeline_stage_errors_total",
			Help: "Total number of pipeline failures partitioned by error category",
		},
		[]string{"category"},
	)
	m.ActiveRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "leafnet_pipeline_active_records",
		Help: "Number of records currently in processing",
	})
	m.DownloadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "leafnet_pipeline_download_bytes",
		Help:    "Size of downloaded source images",
		Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10), // 16KiB to 8MiB
	})
	m.SideEffectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafnet_pipeline_side_effects_total",
			Help: "Total number of best-effort side effects partitioned by effect and status",
		},
		[]string{"effect", "status"},
	)
	m.AlertsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leafnet_pipeline_alerts_total",
		Help: "Total number of disease alerts raised",
	})
}

// RecordOutcome records the terminal outcome of a record event.
func (m *PipelineMetrics) RecordOutcome(outcome string, durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(outcome).Inc()
	if outcome != StatusSkipped {
		m.RecordDuration.WithLabelValues(outcome).Observe(durationSeconds)
	}
	if err != nil {
		m.StageErrors.WithLabelValues(categorizeError(err)).Inc()
	}
}

// IncActive marks a record as entering processing.
func (m *PipelineMetrics) IncActive() {
	if m == nil {
		return
	}
	m.ActiveRecords.Inc()
}

// DecActive marks a record as leaving processing.
func (m *PipelineMetrics) DecActive() {
	if m == nil {
		return
	}
	m.ActiveRecords.Dec()
}

// ObserveDownload records the size of a downloaded image.
func (m *PipelineMetrics) ObserveDownload(sizeBytes int64) {
	if m == nil {
		return
	}
	m.DownloadBytes.Observe(float64(sizeBytes))
}

// RecordSideEffect records the result of a best-effort side effect.
func (m *PipelineMetrics) RecordSideEffect(effect string, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.SideEffectsTotal.WithLabelValues(effect, status).Inc()
}

// IncAlerts counts a raised alert.
func (m *PipelineMetrics) IncAlerts() {
	if m == nil {
		return
	}
	m.AlertsTotal.Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RecordsTotal.Describe(ch)
	m.RecordDuration.Describe(ch)
	m.StageErrors.Describe(ch)
	ch <- m.ActiveRecords.Desc()
	ch <- m.DownloadBytes.Desc()
	m.SideEffectsTotal.Describe(ch)
	ch <- m.AlertsTotal.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RecordsTotal.Collect(ch)
	m.RecordDuration.Collect(ch)
	m.StageErrors.Collect(ch)
	ch <- m.ActiveRecords
	ch <- m.DownloadBytes
	m.SideEffectsTotal.Collect(ch)
	ch <- m.AlertsTotal
}
