package datastore

import (
	"context"

	"github.com/leafnet/leafnet-go/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertDeviceSummary writes latest_result and latest_analysis for a device,
// creating the row on first use. Other columns are left untouched.
func (ds *DataStore) UpsertDeviceSummary(ctx context.Context, s *DeviceSummary) error {
	if s == nil || s.DeviceID == "" {
		return validationError("device_id is required", "device_id", "")
	}

	err := ds.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"latest_result", "latest_analysis", "updated_at"}),
	}).Create(s).Error
	if err != nil {
		return dbError(err, "upsert_device_summary", errors.PriorityMedium, "device_id", s.DeviceID)
	}
	return nil
}

// GetDeviceSummary loads the summary for deviceID.
func (ds *DataStore) GetDeviceSummary(ctx context.Context, deviceID string) (*DeviceSummary, error) {
	var s DeviceSummary
	if err := ds.DB.WithContext(ctx).Where("device_id = ?", deviceID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("device summary", deviceID)
		}
		return nil, dbError(err, "get_device_summary", errors.PriorityLow, "device_id", deviceID)
	}
	return &s, nil
}
