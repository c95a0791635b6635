package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics contains metrics for push delivery of disease alerts.
type NotificationMetrics struct {
	DeliveryTotal    *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
	RateLimited      *prometheus.CounterVec
	registry         *prometheus.Registry
}

// NewNotificationMetrics creates and registers notification metrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

func (m *NotificationMetrics) initMetrics() {
	m.DeliveryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Total number of push delivery attempts by provider and status",
		},
		[]string{"provider", "status"},
	)
	m.DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_delivery_duration_seconds",
			Help:    "Time taken to deliver a push notification",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"provider"},
	)
	m.RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_rate_limited_total",
			Help: "Total number of push deliveries dropped by the rate limiter",
		},
		[]string{"provider"},
	)
}

// RecordDelivery records a push delivery attempt.
func (m *NotificationMetrics) RecordDelivery(provider string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.DeliveryTotal.WithLabelValues(provider, status).Inc()
	m.DeliveryDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRateLimited counts a delivery dropped by the limiter.
func (m *NotificationMetrics) RecordRateLimited(provider string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(provider).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DeliveryTotal.Describe(ch)
	m.DeliveryDuration.Describe(ch)
	m.RateLimited.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DeliveryTotal.Collect(ch)
	m.DeliveryDuration.Collect(ch)
	m.RateLimited.Collect(ch)
}
