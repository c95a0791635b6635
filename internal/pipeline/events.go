package pipeline

import (
	"time"

	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/leafnet"
)

// AlertEvent is the MQTT payload published for a disease alert.
type AlertEvent struct {
	AlertID        string    `json:"alert_id"`
	RecordID       string    `json:"record_id"`
	DeviceID       string    `json:"device_id"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	ImageRef       string    `json:"image_ref"`
	Classification string    `json:"classification"`
	Confidence     float64   `json:"confidence"`
	CreatedAt      time.Time `json:"created_at"`
}

func newAlertEvent(recordID string, alert *datastore.AlertRecord, result *leafnet.Result) AlertEvent {
	return AlertEvent{
		AlertID:        alert.ID,
		RecordID:       recordID,
		DeviceID:       alert.DeviceID,
		Title:          alert.Title,
		Message:        alert.Message,
		ImageRef:       alert.ImageRef,
		Classification: result.Class,
		Confidence:     result.Confidence,
		CreatedAt:      alert.CreatedAt,
	}
}

// toStoredProbabilities converts a classifier distribution for persistence.
func toStoredProbabilities(probs []leafnet.ClassProbability) []datastore.ClassProbability {
	out := make([]datastore.ClassProbability, len(probs))
	for i, p := range probs {
		out[i] = datastore.ClassProbability{Class: p.Class, Probability: p.Probability}
	}
	return out
}
