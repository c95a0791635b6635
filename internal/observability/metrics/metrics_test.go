package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafnet/leafnet-go/internal/errors"
)

func TestLeafNetMetricsModelLoad(t *testing.T) {
	t.Parallel()

	m, err := NewLeafNetMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordModelLoad(fmt.Errorf("missing file"))
	assert.InDelta(t, 0, testutil.ToFloat64(m.ModelLoadedGauge), 0)
	m.RecordModelLoad(nil)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ModelLoadedGauge), 0)

	assert.InDelta(t, 1, testutil.ToFloat64(m.ModelLoadTotal.WithLabelValues(StatusError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ModelLoadTotal.WithLabelValues(StatusSuccess)), 0)

	m.RecordModelUnload()
	assert.InDelta(t, 0, testutil.ToFloat64(m.ModelLoadedGauge), 0)
}

func TestLeafNetMetricsInferenceCountsClass(t *testing.T) {
	t.Parallel()

	m, err := NewLeafNetMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordInference("late_blight_leaf", 0.01, nil)
	m.RecordInference("late_blight_leaf", 0.02, nil)
	m.RecordInference("", 0, fmt.Errorf("invoke failed"))

	assert.InDelta(t, 2, testutil.ToFloat64(m.ClassificationTotal.WithLabelValues("late_blight_leaf")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.InferenceTotal.WithLabelValues(StatusError)), 0)
}

func TestPreprocessErrorsUseCategory(t *testing.T) {
	t.Parallel()

	m, err := NewLeafNetMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	perr := errors.Newf("unknown format").Category(errors.CategoryPreprocess).Build()
	m.RecordPreprocess(0, perr)
	m.RecordPreprocess(0, fmt.Errorf("plain"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.PreprocessErrors.WithLabelValues(string(errors.CategoryPreprocess))), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PreprocessErrors.WithLabelValues("unknown")), 0)
}

func TestPipelineMetricsOutcomes(t *testing.T) {
	t.Parallel()

	m, err := NewPipelineMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.IncActive()
	m.RecordOutcome("completed", 0.5, nil)
	m.RecordOutcome(StatusSkipped, 0, nil)
	m.RecordOutcome("failed", 0.1, errors.Newf("gone").Category(errors.CategoryDownload).Build())
	m.DecActive()
	m.RecordSideEffect("alert_push", fmt.Errorf("timeout"))
	m.IncAlerts()

	assert.InDelta(t, 1, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("completed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RecordsTotal.WithLabelValues(StatusSkipped)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StageErrors.WithLabelValues(string(errors.CategoryDownload))), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.ActiveRecords), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SideEffectsTotal.WithLabelValues("alert_push", StatusError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AlertsTotal), 0)
}

func TestNilReceiversAreNoops(t *testing.T) {
	t.Parallel()

	var (
		l *LeafNetMetrics
		p *PipelineMetrics
		q *MQTTMetrics
		n *NotificationMetrics
		o *OutboxMetrics
		h *HTTPMetrics
	)

	assert.NotPanics(t, func() {
		l.RecordModelLoad(nil)
		l.RecordInference("x", 1, nil)
		l.RecordPreprocess(1, nil)
		p.RecordOutcome("completed", 1, nil)
		p.IncActive()
		p.ObserveDownload(10)
		q.UpdateConnectionStatus(true)
		q.ObservePublishLatency(time.Second)
		n.RecordDelivery("ntfy", time.Second, nil)
		o.RecordJob("device_summary", "completed")
		o.SetQueueDepth(3)
		h.RecordHTTPRequest("GET", "/api/v1/stats", 200, 0.01)
	})
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewOutboxMetrics(reg)
	require.NoError(t, err)
	_, err = NewOutboxMetrics(reg)
	require.Error(t, err)
}
