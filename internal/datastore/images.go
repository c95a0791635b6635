package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/logger"
	"gorm.io/gorm"
)

const maxPendingBatch = 1000

// CreateImage inserts a new image record. ID and status are filled in when empty.
func (ds *DataStore) CreateImage(ctx context.Context, rec *ImageRecord) error {
	if rec == nil {
		return validationError("image record is nil", "record", nil)
	}
	if rec.ImagePath == "" {
		return validationError("image_path is required", "image_path", rec.ImagePath)
	}

	if err := ds.DB.WithContext(ctx).Create(rec).Error; err != nil {
		return dbError(err, "create_image", errors.PriorityHigh,
			"table", "image_records",
			"device_id", rec.DeviceID)
	}

	GetLogger().Debug("image record created",
		logger.String("record_id", rec.ID),
		logger.String("device_id", rec.DeviceID),
		logger.String("status", string(rec.Status)))
	return nil
}

// GetImage loads a single image record by ID.
func (ds *DataStore) GetImage(ctx context.Context, id string) (*ImageRecord, error) {
	if id == "" {
		return nil, validationError("record id is required", "id", id)
	}

	var rec ImageRecord
	if err := ds.DB.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("image record", id)
		}
		return nil, dbError(err, "get_image", errors.PriorityMedium, "record_id", id)
	}
	return &rec, nil
}

// ClaimImage atomically moves a pending record to processing.
// Only one caller can win the claim for a given record.
func (ds *DataStore) ClaimImage(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, validationError("record id is required", "id", id)
	}

	res := ds.DB.WithContext(ctx).
		Model(&ImageRecord{}).
		Where("id = ? AND status = ?", id, StatusPendingAnalysis).
		Update("status", StatusProcessing)
	if res.Error != nil {
		return false, dbError(res.Error, "claim_image", errors.PriorityHigh, "record_id", id)
	}
	return res.RowsAffected == 1, nil
}

// CompleteImage records a classification on a processing record.
func (ds *DataStore) CompleteImage(ctx context.Context, id string, c *Completion) error {
	if c == nil {
		return validationError("completion is nil", "completion", nil)
	}
	if c.Classification == "" {
		return validationError("classification is required", "classification", c.Classification)
	}

	processedAt := c.ProcessedAt.UTC()
	class := c.Classification
	confidence := c.Confidence
	update := ImageRecord{
		Status:           StatusCompleted,
		Classification:   &class,
		Confidence:       &confidence,
		AllProbabilities: c.Probabilities,
		ProcessedAt:      &processedAt,
	}

	res := ds.DB.WithContext(ctx).
		Model(&ImageRecord{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(update)
	if res.Error != nil {
		return dbError(res.Error, "complete_image", errors.PriorityHigh, "record_id", id)
	}
	if res.RowsAffected == 0 {
		return ds.transitionError(ctx, id, "complete_image", StatusCompleted)
	}
	return nil
}

// FailImage moves a processing record to error with a readable message.
func (ds *DataStore) FailImage(ctx context.Context, id, message string, at time.Time) error {
	if message == "" {
		message = "unknown error"
	}

	res := ds.DB.WithContext(ctx).
		Model(&ImageRecord{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(map[string]any{
			"status":        StatusError,
			"error_message": message,
			"processed_at":  at.UTC(),
		})
	if res.Error != nil {
		return dbError(res.Error, "fail_image", errors.PriorityHigh, "record_id", id)
	}
	if res.RowsAffected == 0 {
		return ds.transitionError(ctx, id, "fail_image", StatusError)
	}
	return nil
}

// ListPendingImages returns up to limit pending records, oldest first.
func (ds *DataStore) ListPendingImages(ctx context.Context, limit int) ([]ImageRecord, error) {
	if limit <= 0 || limit > maxPendingBatch {
		limit = maxPendingBatch
	}

	var recs []ImageRecord
	err := ds.DB.WithContext(ctx).
		Where("status = ?", StatusPendingAnalysis).
		Order("created_at ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, dbError(err, "list_pending_images", errors.PriorityMedium, "limit", limit)
	}
	return recs, nil
}

// transitionError explains why a conditional update matched no rows.
func (ds *DataStore) transitionError(ctx context.Context, id, operation string, target ImageStatus) error {
	rec, err := ds.GetImage(ctx, id)
	if err != nil {
		return err
	}
	return stateError(
		fmt.Errorf("cannot move record %s from %s to %s", id, rec.Status, target),
		operation, "image_status",
		"record_id", id,
		"current_status", string(rec.Status),
		"target_status", string(target))
}
