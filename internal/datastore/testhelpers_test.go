package datastore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestStore opens a migrated SQLite store in a temp directory.
func setupTestStore(t *testing.T) *DataStore {
	t.Helper()

	ds, err := OpenSQLite(filepath.Join(t.TempDir(), "leafnet_test.db"), 0)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

// createPending inserts a pending record for device and returns it.
func createPending(t *testing.T, ds *DataStore, device string) *ImageRecord {
	t.Helper()

	rec := &ImageRecord{ImagePath: "leaf-uploads/" + device + ".jpg", DeviceID: device}
	require.NoError(t, ds.CreateImage(context.Background(), rec))
	return rec
}

// claimed inserts a record and moves it to processing.
func claimed(t *testing.T, ds *DataStore, device string) *ImageRecord {
	t.Helper()

	rec := createPending(t, ds, device)
	ok, err := ds.ClaimImage(context.Background(), rec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	return rec
}
