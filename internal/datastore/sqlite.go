package datastore

import (
	"os"
	"path/filepath"
	"time"

	"github.com/leafnet/leafnet-go/internal/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// OpenSQLite opens (creating when needed) the SQLite database at path.
func OpenSQLite(path string, slowThreshold time.Duration) (*DataStore, error) {
	if path == "" {
		return nil, validationError("sqlite path is empty", "database.sqlite.path", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("operation", "create_db_dir").
				FileContext(dir, 0).
				Build()
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: createGormLogger(slowThreshold)})
	if err != nil {
		return nil, dbError(err, "open_sqlite", errors.PriorityCritical, "path", path)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "get_sql_db", errors.PriorityCritical)
	}
	// single writer connection
	sqlDB.SetMaxOpenConns(1)

	if err := performAutoMigration(db, "sqlite", path); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &DataStore{DB: db, Dialect: "sqlite"}, nil
}
