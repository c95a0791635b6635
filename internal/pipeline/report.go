package pipeline

import (
	"fmt"
	"time"

	"github.com/leafnet/leafnet-go/internal/leafnet"
)

// Outcome is the result of one Handle call.
type Outcome string

const (
	// OutcomeSkipped means the record was not eligible or another invocation claimed it.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeCompleted means the record reached completed.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed means the record reached error.
	OutcomeFailed Outcome = "failed"
	// OutcomeAborted means the caller cancelled mid-analysis; the record
	// keeps its last persisted status (processing).
	OutcomeAborted Outcome = "aborted"
)

// Report describes what Handle did with a record.
type Report struct {
	RecordID   string
	Outcome    Outcome
	SkipReason string
	Result     *leafnet.Result
	// Err is the step failure that moved the record to error, or the
	// caller's context error for an aborted run.
	Err      error
	Duration time.Duration
}

// FormatSummary renders the device summary line, e.g.
// "early_blight_leaf (73.21%)".
func FormatSummary(class string, confidence float64) string {
	return fmt.Sprintf("%s (%.2f%%)", class, confidence*100)
}
