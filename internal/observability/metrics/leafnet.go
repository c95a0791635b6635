// Package metrics provides custom Prometheus metrics for LeafNet components.
//
// Every Record method is safe to call on a nil receiver so components can run
// without a metrics registry in tests and one-shot CLI commands.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// LeafNetMetrics contains metrics for model loading, preprocessing and inference.
type LeafNetMetrics struct {
	ModelLoadTotal      *prometheus.CounterVec
	ModelLoadedGauge    prometheus.Gauge
	PreprocessDuration  prometheus.Histogram
	PreprocessErrors    *prometheus.CounterVec
	InferenceDuration   prometheus.Histogram
	InferenceTotal      *prometheus.CounterVec
	ClassificationTotal *prometheus.CounterVec
	registry            *prometheus.Registry
}

// NewLeafNetMetrics creates and registers classifier metrics.
func NewLeafNetMetrics(registry *prometheus.Registry) (*LeafNetMetrics, error) {
	m := &LeafNetMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register LeafNet metrics: %w", err)
	}
	return m, nil
}

func (m *LeafNetMetrics) initMetrics() {
	m.ModelLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafnet_model_load_total",
			Help: "Total number of model load attempts",
		},
		[]string{"status"},
	)
	m.ModelLoadedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "leafnet_model_loaded",
		Help: "Whether the classifier model is currently loaded (1) or not (0)",
	})
	m.PreprocessDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "leafnet_preprocess_duration_seconds",
		Help:    "Time taken to decode and resize an image",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
	})
	m.PreprocessErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafnet_preprocess_errors_total",
			Help: "Total number of images that could not be preprocessed",
		},
		[]string{"error_type"},
	)
	m.InferenceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "leafnet_inference_duration_seconds",
		Help:    "Time taken for a single model forward pass",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})
	m.InferenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafnet_inference_total",
			Help: "Total number of inference requests",
		},
		[]string{"status"},
	)
	m.ClassificationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafnet_classifications_total",
			Help: "Total number of classifications partitioned by predicted class",
		},
		[]string{"class"},
	)
}

// RecordModelLoad records a model load attempt.
func (m *LeafNetMetrics) RecordModelLoad(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ModelLoadTotal.WithLabelValues(StatusError).Inc()
		m.ModelLoadedGauge.Set(0)
		return
	}
	m.ModelLoadTotal.WithLabelValues(StatusSuccess).Inc()
	m.ModelLoadedGauge.Set(1)
}

// RecordModelUnload marks the model as released.
func (m *LeafNetMetrics) RecordModelUnload() {
	if m == nil {
		return
	}
	m.ModelLoadedGauge.Set(0)
}

// RecordPreprocess records a preprocessing run.
func (m *LeafNetMetrics) RecordPreprocess(durationSeconds float64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PreprocessErrors.WithLabelValues(categorizeError(err)).Inc()
		return
	}
	m.PreprocessDuration.Observe(durationSeconds)
}

// RecordInference records a forward pass and, on success, the predicted class.
func (m *LeafNetMetrics) RecordInference(class string, durationSeconds float64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.InferenceTotal.WithLabelValues(StatusError).Inc()
		return
	}
	m.InferenceTotal.WithLabelValues(StatusSuccess).Inc()
	m.InferenceDuration.Observe(durationSeconds)
	m.ClassificationTotal.WithLabelValues(class).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *LeafNetMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ModelLoadTotal.Describe(ch)
	ch <- m.ModelLoadedGauge.Desc()
	ch <- m.PreprocessDuration.Desc()
	m.PreprocessErrors.Describe(ch)
	ch <- m.InferenceDuration.Desc()
	m.InferenceTotal.Describe(ch)
	m.ClassificationTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *LeafNetMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ModelLoadTotal.Collect(ch)
	ch <- m.ModelLoadedGauge
	ch <- m.PreprocessDuration
	m.PreprocessErrors.Collect(ch)
	ch <- m.InferenceDuration
	m.InferenceTotal.Collect(ch)
	m.ClassificationTotal.Collect(ch)
}
