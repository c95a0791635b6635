package datastore

import (
	"fmt"
	"time"

	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/logger"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// New opens the database selected by settings and migrates the schema.
func New(settings *conf.DatabaseSettings) (*DataStore, error) {
	if settings == nil {
		return nil, validationError("database settings are nil", "database", nil)
	}

	switch settings.Type {
	case "", "sqlite":
		return OpenSQLite(settings.SQLite.Path, settings.SlowQueryThreshold)
	case "mysql":
		return OpenMySQL(settings.MySQL.MySQLDSN(), settings.SlowQueryThreshold)
	default:
		return nil, validationError(fmt.Sprintf("unsupported database type %q", settings.Type), "database.type", settings.Type)
	}
}

// createGormLogger routes gorm output into the datastore module logger.
func createGormLogger(slowThreshold time.Duration) gorm_logger.Interface {
	return logger.NewGormLoggerAdapter(GetLogger(), slowThreshold)
}

// performAutoMigration creates or updates the tables for every entity.
func performAutoMigration(db *gorm.DB, dialect, location string) error {
	start := time.Now()
	if err := db.AutoMigrate(models()...); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Priority(errors.PriorityCritical).
			Context("operation", "auto_migrate").
			Context("dialect", dialect).
			Build()
	}

	GetLogger().Info("database schema ready",
		logger.String("dialect", dialect),
		logger.String("location", location),
		logger.Duration("duration", time.Since(start)))
	return nil
}
