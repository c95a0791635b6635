// Package notification decides when a classification warrants a disease
// alert and delivers alerts through push services.
package notification

import (
	"fmt"
	"time"

	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/leafnet"
)

// AlertTitle is the fixed title of every disease alert.
const AlertTitle = "Tomato Disease Detected!"

// DefaultThreshold is the confidence an unhealthy class must exceed to alert.
const DefaultThreshold = 0.70

// Policy turns classification results into alert records.
// It has no side effects; the clock is injected for tests.
type Policy struct {
	threshold    float64
	healthyLabel string
	now          func() time.Time
}

// NewPolicy returns a policy alerting when class != healthyLabel and
// confidence > threshold. Zero values fall back to the defaults.
func NewPolicy(threshold float64, healthyLabel string) *Policy {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if healthyLabel == "" {
		healthyLabel = leafnet.HealthyLabel
	}
	return &Policy{threshold: threshold, healthyLabel: healthyLabel, now: time.Now}
}

// WithClock replaces the time source used for created_at.
func (p *Policy) WithClock(now func() time.Time) *Policy {
	p.now = now
	return p
}

// Threshold returns the configured confidence threshold.
func (p *Policy) Threshold() float64 { return p.threshold }

// ShouldAlert reports whether result crosses the alert boundary.
func (p *Policy) ShouldAlert(result *leafnet.Result) bool {
	return result != nil && result.Class != p.healthyLabel && result.Confidence > p.threshold
}

// MaybeNotify returns the alert to store for result, or nil when none is due.
func (p *Policy) MaybeNotify(deviceID, imageRef string, result *leafnet.Result) *datastore.AlertRecord {
	if !p.ShouldAlert(result) {
		return nil
	}
	return &datastore.AlertRecord{
		DeviceID:  deviceID,
		Title:     AlertTitle,
		Message:   AlertMessage(result.Class, result.Confidence),
		ImageRef:  imageRef,
		CreatedAt: p.now(),
		Read:      false,
	}
}

// AlertMessage formats the alert body, e.g.
// "late_blight_leaf detected with 85.00% confidence".
func AlertMessage(class string, confidence float64) string {
	return fmt.Sprintf("%s detected with %.2f%% confidence", class, confidence*100)
}
