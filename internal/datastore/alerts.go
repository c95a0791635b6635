package datastore

import (
	"context"

	"github.com/leafnet/leafnet-go/internal/errors"
	"gorm.io/gorm/clause"
)

const defaultAlertLimit = 100

// readColumn is quoted through clause.Column since READ is reserved in MySQL.
var readColumn = clause.Column{Name: "read"}

// SaveAlert stores a new alert record. Saving an existing ID is a no-op.
func (ds *DataStore) SaveAlert(ctx context.Context, a *AlertRecord) error {
	if a == nil {
		return validationError("alert is nil", "alert", nil)
	}
	if a.Title == "" {
		return validationError("alert title is required", "title", a.Title)
	}

	// replays of the same alert ID are ignored
	err := ds.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(a).Error
	if err != nil {
		return dbError(err, "save_alert", errors.PriorityMedium,
			"device_id", a.DeviceID,
			"image_ref", a.ImageRef)
	}
	return nil
}

// ListAlerts returns the newest alerts for a device.
func (ds *DataStore) ListAlerts(ctx context.Context, deviceID string, unreadOnly bool, limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = defaultAlertLimit
	}

	query := ds.DB.WithContext(ctx).Where("device_id = ?", deviceID)
	if unreadOnly {
		query = query.Where(clause.Eq{Column: readColumn, Value: false})
	}

	var alerts []AlertRecord
	if err := query.Order("created_at DESC").Limit(limit).Find(&alerts).Error; err != nil {
		return nil, dbError(err, "list_alerts", errors.PriorityLow, "device_id", deviceID)
	}
	return alerts, nil
}

// MarkAlertRead flags an alert as read. Marking twice is not an error.
func (ds *DataStore) MarkAlertRead(ctx context.Context, id string) error {
	var count int64
	if err := ds.DB.WithContext(ctx).Model(&AlertRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return dbError(err, "mark_alert_read", errors.PriorityLow, "alert_id", id)
	}
	if count == 0 {
		return notFoundError("alert", id)
	}

	err := ds.DB.WithContext(ctx).
		Model(&AlertRecord{}).
		Where("id = ?", id).
		Update("read", true).Error
	if err != nil {
		return dbError(err, "mark_alert_read", errors.PriorityLow, "alert_id", id)
	}
	return nil
}
