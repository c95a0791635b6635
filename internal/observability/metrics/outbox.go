package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics contains metrics for the retrying side-effect queue.
type OutboxMetrics struct {
	JobsTotal  *prometheus.CounterVec
	Retries    *prometheus.CounterVec
	QueueDepth prometheus.Gauge
	registry   *prometheus.Registry
}

// NewOutboxMetrics creates and registers outbox metrics.
func NewOutboxMetrics(registry *prometheus.Registry) (*OutboxMetrics, error) {
	m := &OutboxMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register outbox metrics: %w", err)
	}
	return m, nil
}

func (m *OutboxMetrics) initMetrics() {
	m.JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafnet_outbox_jobs_total",
			Help: "Total number of outbox jobs by final status (completed, failed, dropped, cancelled)",
		},
		[]string{"action", "status"},
	)
	m.Retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafnet_outbox_retries_total",
			Help: "Total number of outbox job retries",
		},
		[]string{"action"},
	)
	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "leafnet_outbox_queue_depth",
		Help: "Number of jobs waiting in the outbox",
	})
}

// RecordJob records the final status of an outbox job.
func (m *OutboxMetrics) RecordJob(action, status string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(action, status).Inc()
}

// RecordRetry counts a scheduled retry.
func (m *OutboxMetrics) RecordRetry(action string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(action).Inc()
}

// SetQueueDepth sets the current queue depth.
func (m *OutboxMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// Describe implements the prometheus.Collector interface.
func (m *OutboxMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.JobsTotal.Describe(ch)
	m.Retries.Describe(ch)
	ch <- m.QueueDepth.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *OutboxMetrics) Collect(ch chan<- prometheus.Metric) {
	m.JobsTotal.Collect(ch)
	m.Retries.Collect(ch)
	ch <- m.QueueDepth
}
