// Package outbox runs best-effort side effects with retries and
// exponential backoff, outside the pipeline state machine.
package outbox

import (
	"context"
	"time"

	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/errors"
)

// Errors returned by queue operations.
var (
	ErrNilAction    = errors.NewStd("cannot enqueue nil action")
	ErrQueueStopped = errors.NewStd("outbox queue is not running")
	ErrQueueFull    = errors.NewStd("outbox queue is full")
)

// RetryConfig holds the retry behaviour of one job.
type RetryConfig struct {
	Enabled      bool
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Enabled:      true,
		MaxRetries:   5,
		InitialDelay: 2 * time.Second,
		MaxDelay:     2 * time.Minute,
		Multiplier:   2.0,
	}
}

// RetryConfigFromSettings maps the outbox settings section.
func RetryConfigFromSettings(s *conf.OutboxSettings) RetryConfig {
	cfg := RetryConfig{
		Enabled:      s.MaxRetries > 0,
		MaxRetries:   s.MaxRetries,
		InitialDelay: s.InitialDelay,
		MaxDelay:     s.MaxDelay,
		Multiplier:   s.Multiplier,
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	return cfg
}

// Action is one unit of side-effect work.
type Action interface {
	Execute(ctx context.Context) error
	// Name identifies the action kind in logs and metrics.
	Name() string
}

type funcAction struct {
	name string
	fn   func(ctx context.Context) error
}

func (a funcAction) Execute(ctx context.Context) error { return a.fn(ctx) }
func (a funcAction) Name() string                      { return a.name }

// NewAction wraps fn as an Action called name.
func NewAction(name string, fn func(ctx context.Context) error) Action {
	return funcAction{name: name, fn: fn}
}

// JobStatus represents the state of a queued job.
type JobStatus int

const (
	JobStatusPending JobStatus = iota
	JobStatusRunning
	JobStatusCompleted
	JobStatusFailed
	JobStatusRetrying
)

// String returns a string representation of the job status
func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "Pending"
	case JobStatusRunning:
		return "Running"
	case JobStatusCompleted:
		return "Completed"
	case JobStatusFailed:
		return "Failed"
	case JobStatusRetrying:
		return "Retrying"
	default:
		return "Unknown"
	}
}

// Job is an action plus its retry bookkeeping.
type Job struct {
	ID          string
	Action      Action
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
	NextRetryAt time.Time
	Status      JobStatus
	LastError   error
	Config      RetryConfig
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	TotalJobs      int
	SuccessfulJobs int
	FailedJobs     int
	DroppedJobs    int
	RetryAttempts  int
	PendingJobs    int
	MaxQueueSize   int
}
