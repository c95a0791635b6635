// Package datastore persists image records, device summaries and alerts with GORM.
package datastore

import (
	"context"
	"time"

	"github.com/leafnet/leafnet-go/internal/logger"
	"gorm.io/gorm"
)

// Interface abstracts the record store used by the pipeline and the API.
type Interface interface {
	Close() error

	CreateImage(ctx context.Context, rec *ImageRecord) error
	GetImage(ctx context.Context, id string) (*ImageRecord, error)
	// ClaimImage moves a record from pending_analysis to processing.
	// It returns false when the record was not pending.
	ClaimImage(ctx context.Context, id string) (bool, error)
	CompleteImage(ctx context.Context, id string, c *Completion) error
	FailImage(ctx context.Context, id, message string, at time.Time) error
	ListPendingImages(ctx context.Context, limit int) ([]ImageRecord, error)

	UpsertDeviceSummary(ctx context.Context, s *DeviceSummary) error
	GetDeviceSummary(ctx context.Context, deviceID string) (*DeviceSummary, error)

	SaveAlert(ctx context.Context, a *AlertRecord) error
	ListAlerts(ctx context.Context, deviceID string, unreadOnly bool, limit int) ([]AlertRecord, error)
	MarkAlertRead(ctx context.Context, id string) error

	CountCompletedByClass(ctx context.Context, since time.Time) (map[string]int64, error)
}

// DataStore implements Interface on top of a GORM database.
type DataStore struct {
	DB      *gorm.DB
	Dialect string
}

var _ Interface = (*DataStore)(nil)

// Close closes the underlying connection pool.
func (ds *DataStore) Close() error {
	if ds == nil || ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close", "")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", "")
	}
	GetLogger().Info("database closed", logger.String("dialect", ds.Dialect))
	return nil
}
