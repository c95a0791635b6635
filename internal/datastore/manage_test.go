package datastore

import (
	"path/filepath"
	"testing"

	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "leafnet.db")
	ds, err := New(&conf.DatabaseSettings{Type: "sqlite", SQLite: conf.SQLiteSettings{Path: path}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })

	assert.Equal(t, "sqlite", ds.Dialect)
	for _, m := range models() {
		assert.True(t, ds.DB.Migrator().HasTable(m), "table for %T missing", m)
	}
	assert.FileExists(t, path)
}

func TestNewRejectsUnknownType(t *testing.T) {
	t.Parallel()

	_, err := New(&conf.DatabaseSettings{Type: "postgres"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestCloseNilStore(t *testing.T) {
	t.Parallel()

	var ds *DataStore
	assert.NoError(t, ds.Close())
}
