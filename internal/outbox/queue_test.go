package outbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAction fails until failures is exhausted.
type countingAction struct {
	calls    atomic.Int32
	failures int32
}

func (a *countingAction) Execute(context.Context) error {
	if a.calls.Add(1) <= a.failures {
		return errors.New("transient failure")
	}
	return nil
}

func (a *countingAction) Name() string { return "counting" }

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		Enabled:      true,
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func startQueue(t *testing.T, maxJobs int) *Queue {
	t.Helper()
	q := NewQueue(maxJobs)
	q.SetProcessingInterval(5 * time.Millisecond)
	q.Start(context.Background())
	t.Cleanup(func() { require.NoError(t, q.Stop(time.Second)) })
	return q
}

func TestEnqueueRunsAction(t *testing.T) {
	q := startQueue(t, 10)

	action := &countingAction{}
	_, err := q.Enqueue(action, fastRetry(0))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return q.Stats().SuccessfulJobs == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), action.calls.Load())
}

func TestRetryUntilSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewOutboxMetrics(reg)
	require.NoError(t, err)

	q := startQueue(t, 10)
	q.SetMetrics(m)

	action := &countingAction{failures: 2}
	_, err = q.Enqueue(action, fastRetry(3))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return q.Stats().SuccessfulJobs == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), action.calls.Load())
	assert.InDelta(t, 2, testutil.ToFloat64(m.Retries.WithLabelValues("counting")), 0)
}

func TestRetryExhausted(t *testing.T) {
	q := startQueue(t, 10)

	action := &countingAction{failures: 100}
	_, err := q.Enqueue(action, fastRetry(2))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return q.Stats().FailedJobs == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), action.calls.Load(), "one attempt plus two retries")
}

func TestRetryDisabledRunsOnce(t *testing.T) {
	q := startQueue(t, 10)

	action := &countingAction{failures: 100}
	_, err := q.Enqueue(action, RetryConfig{Enabled: false, MaxRetries: 5})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return q.Stats().FailedJobs == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), action.calls.Load())
}

func TestPanickingActionFails(t *testing.T) {
	q := startQueue(t, 10)

	_, err := q.Enqueue(NewAction("panics", func(context.Context) error { panic("boom") }), fastRetry(0))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return q.Stats().FailedJobs == 1 }, time.Second, 5*time.Millisecond)
}

func TestEnqueueValidation(t *testing.T) {
	q := NewQueue(1)

	_, err := q.Enqueue(nil, fastRetry(0))
	require.ErrorIs(t, err, ErrNilAction)

	_, err = q.Enqueue(&countingAction{}, fastRetry(0))
	require.ErrorIs(t, err, ErrQueueStopped)
}

func TestQueueFullDropsOldest(t *testing.T) {
	q := NewQueue(2)
	q.SetProcessingInterval(time.Hour)
	q.Start(context.Background())
	defer func() { require.NoError(t, q.Stop(time.Second)) }()

	first, err := q.Enqueue(&countingAction{}, fastRetry(0))
	require.NoError(t, err)
	_, err = q.Enqueue(&countingAction{}, fastRetry(0))
	require.NoError(t, err)
	_, err = q.Enqueue(&countingAction{}, fastRetry(0))
	require.NoError(t, err)

	stats := q.Stats()
	assert.Equal(t, 1, stats.DroppedJobs)
	assert.Equal(t, 2, stats.PendingJobs)

	q.mu.Lock()
	for _, j := range q.jobs {
		assert.NotEqual(t, first.ID, j.ID)
	}
	q.mu.Unlock()
}

func TestStopCancelsRunningAction(t *testing.T) {
	q := NewQueue(10)
	q.SetProcessingInterval(time.Millisecond)
	q.Start(context.Background())

	started := make(chan struct{})
	_, err := q.Enqueue(NewAction("blocking", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}), fastRetry(3))
	require.NoError(t, err)

	<-started
	require.NoError(t, q.Stop(time.Second))
	assert.Equal(t, 1, q.Stats().FailedJobs)
}

func TestStopIdempotent(t *testing.T) {
	q := NewQueue(1)
	assert.NoError(t, q.Stop(time.Second))
	q.Start(context.Background())
	assert.NoError(t, q.Stop(time.Second))
	assert.NoError(t, q.Stop(time.Second))
}

func TestCalculateBackoffDelay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	first := calculateBackoffDelay(cfg, 1)
	assert.GreaterOrEqual(t, first, 90*time.Millisecond)
	assert.LessOrEqual(t, first, 110*time.Millisecond)

	third := calculateBackoffDelay(cfg, 3)
	assert.GreaterOrEqual(t, third, 360*time.Millisecond)
	assert.LessOrEqual(t, third, 440*time.Millisecond)

	assert.Equal(t, time.Second, calculateBackoffDelay(cfg, 10))
}

func TestRetryConfigFromSettings(t *testing.T) {
	cfg := RetryConfigFromSettings(&conf.OutboxSettings{
		MaxRetries: 4, InitialDelay: 2 * time.Second, MaxDelay: time.Second, Multiplier: 0.5,
	})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.InDelta(t, 1.0, cfg.Multiplier, 0)
	assert.Equal(t, 2*time.Second, cfg.MaxDelay)

	assert.False(t, RetryConfigFromSettings(&conf.OutboxSettings{}).Enabled)
}

func TestJobStatusString(t *testing.T) {
	assert.Equal(t, "Retrying", JobStatusRetrying.String())
	assert.Equal(t, "Unknown", JobStatus(42).String())
}
