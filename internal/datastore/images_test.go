package datastore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateImageAssignsIDAndStatus(t *testing.T) {
	t.Parallel()
	ds := setupTestStore(t)

	rec := createPending(t, ds, "dev-1")
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, StatusPendingAnalysis, rec.Status)

	got, err := ds.GetImage(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "leaf-uploads/dev-1.jpg", got.ImagePath)
	assert.Nil(t, got.Classification)
	assert.Nil(t, got.Confidence)
	assert.Nil(t, got.ProcessedAt)
}

func TestCreateImageRequiresPath(t *testing.T) {
	t.Parallel()
	ds := setupTestStore(t)

	err := ds.CreateImage(context.Background(), &ImageRecord{DeviceID: "dev"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestGetImageNotFound(t *testing.T) {
	t.Parallel()
	ds := setupTestStore(t)

	_, err := ds.GetImage(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestClaimImageOnlyOnce(t *testing.T) {
	t.Parallel()
	ds := setupTestStore(t)
	ctx := context.Background()
	rec := createPending(t, ds, "dev-1")

	ok, err := ds.ClaimImage(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ds.ClaimImage(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	got, err := ds.GetImage(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
}

func TestClaimImageConcurrent(t *testing.T) {
	t.Parallel()
	ds := setupTestStore(t)
	rec := createPending(t, ds, "dev-1")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ds.ClaimImage(context.Background(), rec.ID)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestCompleteImage(t *testing.T) {
	t.Parallel()
	ds := setupTestStore(t)
	ctx := context.Background()
	rec := claimed(t, ds, "dev-1")
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	probs := []ClassProbability{
		{Class: "healthy_leaf", Probability: 0.05},
		{Class: "early_blight_leaf", Probability: 0.10},
		{Class: "late_blight_leaf", Probability: 0.85},
		{Class: "tomato_yellow_leaf_curl_virus", Probability: 0},
	}
	err := ds.CompleteImage(ctx, rec.ID, &Completion{
		Classification: "late_blight_leaf",
		Confidence:     0.85,
		Probabilities:  probs,
		ProcessedAt:    at,
	})
	require.NoError(t, err)

	got, err := ds.GetImage(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.Classification)
	assert.Equal(t, "late_blight_leaf", *got.Classification)
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 0.85, *got.Confidence, 1e-9)
	assert.Equal(t, probs, got.AllProbabilities)
	require.NotNil(t, got.ProcessedAt)
	assert.True(t, at.Equal(*got.ProcessedAt))
	assert.Nil(t, got.ErrorMessage)
}

func TestCompleteImageRejectsWrongState(t *testing.T) {
	t.Parallel()
	ds := setupTestStore(t)
	ctx := context.Background()
	rec := createPending(t, ds, "dev-1")

	err := ds.CompleteImage(ctx, rec.ID, &Completion{Classification: "healthy_leaf", Confidence: 0.9, ProcessedAt: time.Now()})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	got, err := ds.GetImage(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingAnalysis, got.Status)
	assert.Nil(t, got.Classification)
}

func TestCompleteImageMissingRecord(t *testing.T) {
	t.Parallel()
	ds := setupTestStore(t)

	err := ds.CompleteImage(context.Background(), "nope", &Completion{Classification: "healthy_leaf", ProcessedAt: time.Now()})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestFailImage(t *testing.T) {
	t.Parallel()
	ds := setupTestStore(t)
	ctx := context.Background()
	rec := claimed(t, ds, "dev-1")

	require.NoError(t, ds.FailImage(ctx, rec.ID, "object not found", time.Now()))

	got, err := ds.GetImage(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "object not found", *got.ErrorMessage)
	assert.NotNil(t, got.ProcessedAt)
	assert.Nil(t, got.Classification)
	assert.Nil(t, got.Confidence)

	// terminal: a second transition is refused
	err = ds.FailImage(ctx, rec.ID, "again", time.Now())
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
}

func TestFailImageDefaultsMessage(t *testing.T) {
	t.Parallel()
	ds := setupTestStore(t)
	rec := claimed(t, ds, "dev-1")

	require.NoError(t, ds.FailImage(context.Background(), rec.ID, "", time.Now()))

	got, err := ds.GetImage(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ErrorMessage)
	assert.NotEmpty(t, *got.ErrorMessage)
}

func TestListPendingImages(t *testing.T) {
	t.Parallel()
	ds := setupTestStore(t)
	ctx := context.Background()

	first := createPending(t, ds, "a")
	time.Sleep(5 * time.Millisecond)
	second := createPending(t, ds, "b")
	claimed(t, ds, "c")

	recs, err := ds.ListPendingImages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, first.ID, recs[0].ID)
	assert.Equal(t, second.ID, recs[1].ID)

	recs, err = ds.ListPendingImages(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
