package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/outbox"
)

func TestImmediateSwallowsFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	Immediate{}.Submit(context.Background(), outbox.NewAction("save_alert", func(context.Context) error {
		calls.Add(1)
		return errors.NewStd("db locked")
	}))
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueuedRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	q := outbox.NewQueue(10)
	q.SetProcessingInterval(5 * time.Millisecond)
	q.Start(context.Background())
	t.Cleanup(func() { _ = q.Stop(time.Second) })

	var calls atomic.Int32
	retry := outbox.RetryConfig{Enabled: true, MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 1}
	NewQueued(q, retry).Submit(context.Background(), outbox.NewAction("push_alert", func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.NewStd("gateway timeout")
		}
		return nil
	}))

	require.Eventually(t, func() bool { return calls.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestQueuedFallsBackWhenStopped(t *testing.T) {
	t.Parallel()

	q := outbox.NewQueue(10)
	q.Start(context.Background())
	require.NoError(t, q.Stop(time.Second))

	var calls atomic.Int32
	NewQueued(q, outbox.DefaultRetryConfig()).Submit(context.Background(), outbox.NewAction("device_summary", func(context.Context) error {
		calls.Add(1)
		return nil
	}))
	assert.Equal(t, int32(1), calls.Load())
}
