package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAlert(device string, at time.Time) *AlertRecord {
	return &AlertRecord{
		DeviceID:  device,
		Title:     "Tomato Disease Detected!",
		Message:   "late_blight_leaf detected with 85.00% confidence",
		ImageRef:  "leaf-uploads/" + device + ".jpg",
		CreatedAt: at,
	}
}

func TestSaveAndListAlerts(t *testing.T) {
	t.Parallel()
	ds := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	older := newAlert("dev-1", base)
	newer := newAlert("dev-1", base.Add(time.Minute))
	require.NoError(t, ds.SaveAlert(ctx, older))
	require.NoError(t, ds.SaveAlert(ctx, newer))
	require.NoError(t, ds.SaveAlert(ctx, newAlert("dev-2", base)))

	assert.NotEmpty(t, older.ID)
	assert.False(t, older.Read)

	alerts, err := ds.ListAlerts(ctx, "dev-1", false, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, newer.ID, alerts[0].ID, "newest first")
}

func TestMarkAlertRead(t *testing.T) {
	t.Parallel()
	ds := setupTestStore(t)
	ctx := context.Background()

	a := newAlert("dev-1", time.Now())
	b := newAlert("dev-1", time.Now())
	require.NoError(t, ds.SaveAlert(ctx, a))
	require.NoError(t, ds.SaveAlert(ctx, b))

	require.NoError(t, ds.MarkAlertRead(ctx, a.ID))
	require.NoError(t, ds.MarkAlertRead(ctx, a.ID), "marking twice is fine")

	unread, err := ds.ListAlerts(ctx, "dev-1", true, 10)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, b.ID, unread[0].ID)
}

func TestMarkAlertReadNotFound(t *testing.T) {
	t.Parallel()
	ds := setupTestStore(t)

	err := ds.MarkAlertRead(context.Background(), "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestSaveAlertRequiresTitle(t *testing.T) {
	t.Parallel()
	ds := setupTestStore(t)

	err := ds.SaveAlert(context.Background(), &AlertRecord{DeviceID: "dev"})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestSaveAlertReplayIsNoop(t *testing.T) {
	t.Parallel()
	ds := setupTestStore(t)
	ctx := context.Background()

	a := newAlert("dev-1", time.Now())
	a.ID = "fixed-id"
	require.NoError(t, ds.SaveAlert(ctx, a))
	require.NoError(t, ds.SaveAlert(ctx, a))

	alerts, err := ds.ListAlerts(ctx, "dev-1", false, 0)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}
