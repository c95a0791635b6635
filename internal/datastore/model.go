package datastore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ImageStatus is the pipeline state of an image record.
type ImageStatus string

// Image record states. Records only move forward through these.
const (
	StatusPendingAnalysis ImageStatus = "pending_analysis"
	StatusProcessing      ImageStatus = "processing"
	StatusCompleted       ImageStatus = "completed"
	StatusError           ImageStatus = "error"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ImageStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// ClassProbability is one entry of a stored probability distribution.
type ClassProbability struct {
	Class       string  `json:"class"`
	Probability float64 `json:"probability"`
}

// ImageRecord tracks one submitted leaf image from arrival to a terminal state.
type ImageRecord struct {
	ID               string             `gorm:"primaryKey;size:36" json:"id"`
	ImagePath        string             `gorm:"size:1024;not null" json:"image_path"` // "<container>/<object-name>"
	DeviceID         string             `gorm:"size:128;index" json:"device_id"`
	Status           ImageStatus        `gorm:"size:32;not null;index;default:pending_analysis" json:"status"`
	Classification   *string            `gorm:"size:128;index" json:"classification,omitempty"`
	Confidence       *float64           `json:"confidence,omitempty"`
	AllProbabilities []ClassProbability `gorm:"serializer:json" json:"all_probabilities,omitempty"`
	ErrorMessage     *string            `gorm:"type:text" json:"error_message,omitempty"`
	ProcessedAt      *time.Time         `gorm:"index" json:"processed_at,omitempty"`
	CreatedAt        time.Time          `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// BeforeCreate assigns an ID and the initial status when missing.
func (r *ImageRecord) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = StatusPendingAnalysis
	}
	return nil
}

// DeviceSummary holds the latest classification shown for a device.
type DeviceSummary struct {
	DeviceID       string    `gorm:"primaryKey;size:128" json:"device_id"`
	LatestResult   string    `gorm:"size:256" json:"latest_result"`
	LatestAnalysis time.Time `json:"latest_analysis"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AlertRecord is a stored disease alert for a device.
type AlertRecord struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	DeviceID  string    `gorm:"size:128;index" json:"device_id"`
	Title     string    `gorm:"size:256" json:"title"`
	Message   string    `gorm:"size:1024" json:"message"`
	ImageRef  string    `gorm:"size:1024" json:"image_ref"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
}

// BeforeCreate assigns an ID when missing.
func (a *AlertRecord) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Completion carries the fields written when a record completes.
type Completion struct {
	Classification string
	Confidence     float64
	Probabilities  []ClassProbability
	ProcessedAt    time.Time
}

// models lists every entity managed by AutoMigrate.
func models() []any {
	return []any{&ImageRecord{}, &DeviceSummary{}, &AlertRecord{}}
}
