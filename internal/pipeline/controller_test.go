package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/notification"
	"github.com/leafnet/leafnet-go/internal/testutil"
)

func TestHandleCompletesAndRaisesAlert(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0.05, 0.85, 0.05, 0.05)
	f.putImage(t, "leaf-uploads", "field-7/img1.png")
	rec := f.newRecord(t, "leaf-uploads/field-7/img1.png", "dev-1")
	ctx := context.Background()

	report, err := f.ctrl.Handle(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, report.Outcome)
	require.NoError(t, report.Err)
	assert.Equal(t, "early_blight_leaf", report.Result.Class)

	got, err := f.store.GetImage(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusCompleted, got.Status)
	require.NotNil(t, got.Classification)
	assert.Equal(t, "early_blight_leaf", *got.Classification)
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 0.85, *got.Confidence, 1e-6)
	assert.Len(t, got.AllProbabilities, 4)
	assert.Nil(t, got.ErrorMessage)

	summary, err := f.store.GetDeviceSummary(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "early_blight_leaf (85.00%)", summary.LatestResult)

	alerts, err := f.store.ListAlerts(ctx, "dev-1", true, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, notification.AlertTitle, alerts[0].Title)
	assert.Equal(t, "early_blight_leaf detected with 85.00% confidence", alerts[0].Message)
	assert.Equal(t, rec.ImagePath, alerts[0].ImageRef)
	assert.False(t, alerts[0].Read)

	require.Len(t, f.push.alerts, 1)
	require.Len(t, f.pub.payloads, 1)
	assert.Equal(t, "leafnet/alerts", f.pub.topics[0])

	var event AlertEvent
	require.NoError(t, json.Unmarshal(f.pub.payloads[0], &event))
	assert.Equal(t, alerts[0].ID, event.AlertID)
	assert.Equal(t, rec.ID, event.RecordID)
	assert.Equal(t, "early_blight_leaf", event.Classification)

	assert.Empty(t, f.scratchEntries(t), "scratch file must be removed")
}

func TestHandleHealthyLeafRaisesNoAlert(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0.99, 0.005, 0.003, 0.002)
	f.putImage(t, "leaf-uploads", "a.png")
	rec := f.newRecord(t, "leaf-uploads/a.png", "dev-2")

	report, err := f.ctrl.Handle(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, report.Outcome)

	alerts, err := f.store.ListAlerts(context.Background(), "dev-2", false, 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Empty(t, f.push.alerts)
	assert.Empty(t, f.pub.payloads)

	summary, err := f.store.GetDeviceSummary(context.Background(), "dev-2")
	require.NoError(t, err)
	assert.Equal(t, "healthy_leaf (99.00%)", summary.LatestResult)
}

func TestHandleDownloadFailureMarksError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0.05, 0.85, 0.05, 0.05)
	rec := f.newRecord(t, "leaf-uploads/missing.png", "dev-3")
	ctx := context.Background()

	report, err := f.ctrl.Handle(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	require.Error(t, report.Err)
	assert.True(t, errors.IsCategory(report.Err, errors.CategoryDownload))

	got, err := f.store.GetImage(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusError, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.NotEmpty(t, *got.ErrorMessage)
	assert.Nil(t, got.Classification)
	assert.NotNil(t, got.ProcessedAt)

	assert.Zero(t, f.model.Calls(), "model must not run after a failed download")
	assert.Empty(t, f.scratchEntries(t), "scratch file must be removed on failure")

	_, err = f.store.GetDeviceSummary(ctx, "dev-3")
	assert.True(t, errors.IsNotFound(err))
}

func TestHandleInvalidPathMarksError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0.25, 0.25, 0.25, 0.25)
	rec := f.newRecord(t, "no-slash.png", "dev-4")

	report, err := f.ctrl.Handle(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.True(t, errors.IsCategory(report.Err, errors.CategoryValidation))
}

func TestHandleInferenceFailureMarksError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.model.err = errors.NewStd("interpreter crashed")
	f.putImage(t, "leaf-uploads", "b.png")
	rec := f.newRecord(t, "leaf-uploads/b.png", "dev-5")

	report, err := f.ctrl.Handle(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)

	got, err := f.store.GetImage(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusError, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "interpreter crashed")
}

func TestHandleSkipsTerminalRecords(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0.05, 0.85, 0.05, 0.05)
	f.putImage(t, "leaf-uploads", "c.png")
	rec := f.newRecord(t, "leaf-uploads/c.png", "dev-6")
	ctx := context.Background()

	_, err := f.ctrl.Handle(ctx, rec)
	require.NoError(t, err)
	before, err := f.store.GetImage(ctx, rec.ID)
	require.NoError(t, err)

	// Replaying the stale pending snapshot loses the claim.
	report, err := f.ctrl.Handle(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, report.Outcome)

	// Replaying the completed record is skipped by the status guard.
	report, err = f.ctrl.HandleByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, report.Outcome)

	after, err := f.store.GetImage(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, normalizeRecord(before), normalizeRecord(after))
	assert.Equal(t, 1, f.model.Calls())

	alerts, err := f.store.ListAlerts(ctx, "dev-6", false, 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestHandleReplayOfErroredRecordIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0.05, 0.85, 0.05, 0.05)
	rec := f.newRecord(t, "leaf-uploads/missing.png", "dev-9")
	ctx := context.Background()

	report, err := f.ctrl.Handle(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, report.Outcome)
	before, err := f.store.GetImage(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, datastore.StatusError, before.Status)

	// The image showing up later does not revive the record.
	f.putImage(t, "leaf-uploads", "missing.png")
	report, err = f.ctrl.HandleByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, report.Outcome)

	after, err := f.store.GetImage(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, normalizeRecord(before), normalizeRecord(after))
	assert.Zero(t, f.model.Calls())
}

func TestHandleCorruptImageMarksError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0.05, 0.85, 0.05, 0.05)
	f.putBytes(t, "leaf-uploads", "garbled.png", []byte("not an image at all"))
	rec := f.newRecord(t, "leaf-uploads/garbled.png", "dev-10")
	ctx := context.Background()

	report, err := f.ctrl.Handle(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	require.Error(t, report.Err)
	assert.True(t, errors.IsCategory(report.Err, errors.CategoryPreprocess))

	got, err := f.store.GetImage(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusError, got.Status)
	assert.Nil(t, got.Classification)
	assert.Nil(t, got.Confidence)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "corrupt")
	assert.Empty(t, f.scratchEntries(t))
	assert.Zero(t, f.model.Calls())
}

func TestHandleCallerCancelLeavesRecordProcessing(t *testing.T) {
	t.Parallel()

	dl := &blockingDownloader{started: make(chan struct{})}
	f := newFixtureWithDownloader(t, dl, 0.05, 0.85, 0.05, 0.05)
	rec := f.newRecord(t, "leaf-uploads/slow.png", "dev-11")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reports := make(chan *Report, 1)
	go func() {
		report, err := f.ctrl.Handle(ctx, rec)
		assert.NoError(t, err)
		reports <- report
	}()

	testutil.WaitForChannel(t, dl.started, testutil.DefaultTestTimeout, "download never started")
	cancel()
	report := testutil.WaitForChannel(t, reports, testutil.DefaultTestTimeout, "handle did not return")

	require.NotNil(t, report)
	assert.Equal(t, OutcomeAborted, report.Outcome)
	assert.ErrorIs(t, report.Err, context.Canceled)

	got, err := f.store.GetImage(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusProcessing, got.Status)
	assert.Nil(t, got.ErrorMessage)
	assert.Nil(t, got.Classification)
	assert.Empty(t, f.scratchEntries(t))
	assert.Zero(t, f.model.Calls())
}

func TestHandleTimeoutStillMarksError(t *testing.T) {
	t.Parallel()

	dl := &blockingDownloader{started: make(chan struct{})}
	f := newFixtureWithDownloader(t, dl, 0.05, 0.85, 0.05, 0.05)
	f.ctrl.cfg.Timeout = 20 * time.Millisecond
	rec := f.newRecord(t, "leaf-uploads/stuck.png", "dev-12")

	report, err := f.ctrl.Handle(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)

	got, err := f.store.GetImage(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusError, got.Status)
	require.NotNil(t, got.ErrorMessage)
}

func TestHandleConcurrentDeliveryClassifiesOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0.05, 0.05, 0.85, 0.05)
	f.putImage(t, "leaf-uploads", "d.png")
	rec := f.newRecord(t, "leaf-uploads/d.png", "dev-7")

	const deliveries = 6
	var wg sync.WaitGroup
	outcomes := make([]Outcome, deliveries)
	for i := range deliveries {
		wg.Go(func() {
			snapshot := *rec
			report, err := f.ctrl.Handle(context.Background(), &snapshot)
			if err == nil {
				outcomes[i] = report.Outcome
			}
		})
	}
	wg.Wait()

	completed := 0
	for _, o := range outcomes {
		if o == OutcomeCompleted {
			completed++
		} else {
			assert.Equal(t, OutcomeSkipped, o)
		}
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, f.model.Calls())
}

func TestHandleByIDUnknownRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1, 0, 0, 0)
	_, err := f.ctrl.HandleByID(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestNewControllerRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := NewController(Config{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestFormatSummary(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "early_blight_leaf (73.21%)", FormatSummary("early_blight_leaf", 0.7321))
	assert.Equal(t, "healthy_leaf (100.00%)", FormatSummary("healthy_leaf", 1))
}
