package metrics

import (
	"github.com/leafnet/leafnet-go/internal/errors"
)

// Status label values shared by all collectors.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// categorizeError returns the error category label for err.
// Enhanced errors carry their own category; anything else is "unknown".
func categorizeError(err error) string {
	if err == nil {
		return "none"
	}
	var ee *errors.EnhancedError
	if errors.As(err, &ee) && ee.Category != "" {
		return string(ee.Category)
	}
	return "unknown"
}
