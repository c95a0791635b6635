package datastore

import (
	"time"

	"github.com/leafnet/leafnet-go/internal/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const (
	mysqlMaxOpenConns    = 25
	mysqlMaxIdleConns    = 5
	mysqlConnMaxLifetime = 30 * time.Minute
)

// OpenMySQL connects to MySQL with dsn and migrates the schema.
func OpenMySQL(dsn string, slowThreshold time.Duration) (*DataStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: createGormLogger(slowThreshold)})
	if err != nil {
		return nil, dbError(err, "open_mysql", errors.PriorityCritical)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "get_sql_db", errors.PriorityCritical)
	}
	sqlDB.SetMaxOpenConns(mysqlMaxOpenConns)
	sqlDB.SetMaxIdleConns(mysqlMaxIdleConns)
	sqlDB.SetConnMaxLifetime(mysqlConnMaxLifetime)

	if err := performAutoMigration(db, "mysql", "mysql"); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &DataStore{DB: db, Dialect: "mysql"}, nil
}
