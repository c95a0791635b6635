package outbox

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/logger"
	"github.com/leafnet/leafnet-go/internal/observability/metrics"
)

// Job outcome labels for metrics.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeDropped   = "dropped"
)

const (
	defaultMaxJobs            = 1000
	defaultProcessingInterval = time.Second
	defaultExecTimeout        = 30 * time.Second
)

// Queue holds jobs until they succeed or run out of attempts.
type Queue struct {
	mu                 sync.Mutex
	jobs               []*Job
	stats              Stats
	jobCounter         int
	runningJobs        sync.WaitGroup
	loopDone           chan struct{}
	isRunning          bool
	maxJobs            int
	processCancel      context.CancelFunc
	processingInterval time.Duration
	execTimeout        time.Duration
	metrics            *metrics.OutboxMetrics
	log                logger.Logger
}

// NewQueue creates a queue holding at most maxJobs unfinished jobs.
func NewQueue(maxJobs int) *Queue {
	if maxJobs <= 0 {
		maxJobs = defaultMaxJobs
	}
	return &Queue{
		maxJobs:            maxJobs,
		processingInterval: defaultProcessingInterval,
		execTimeout:        defaultExecTimeout,
		log:                GetLogger(),
	}
}

// SetProcessingInterval sets how often due jobs are picked up.
func (q *Queue) SetProcessingInterval(interval time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processingInterval = interval
}

// SetExecTimeout bounds a single attempt.
func (q *Queue) SetExecTimeout(timeout time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.execTimeout = timeout
}

// SetMetrics attaches queue metrics. nil disables them.
func (q *Queue) SetMetrics(m *metrics.OutboxMetrics) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.metrics = m
}

// Start begins processing until ctx is cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isRunning {
		return
	}
	q.isRunning = true

	processCtx, cancel := context.WithCancel(ctx)
	q.processCancel = cancel
	q.loopDone = make(chan struct{})

	go q.processJobs(processCtx, q.loopDone, q.processingInterval)
}

// Stop cancels processing and waits up to timeout for running jobs.
// Jobs still waiting are discarded.
func (q *Queue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	q.processCancel()
	q.processCancel = nil
	loopDone := q.loopDone
	q.mu.Unlock()

	<-loopDone

	done := make(chan struct{})
	go func() {
		q.runningJobs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.Newf("timed out waiting for outbox jobs after %v", timeout).
			Component("outbox").
			Category(errors.CategoryTimeout).
			Build()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if n := q.unfinishedLocked(); n > 0 {
		q.log.Warn("outbox stopped with unfinished jobs", logger.Int("count", n))
	}
	return nil
}

// Enqueue adds action to the queue. When full, the oldest pending job is dropped.
func (q *Queue) Enqueue(action Action, config RetryConfig) (*Job, error) {
	if action == nil {
		return nil, ErrNilAction
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isRunning {
		return nil, ErrQueueStopped
	}

	if q.unfinishedLocked() >= q.maxJobs && !q.dropOldestPendingLocked() {
		q.stats.DroppedJobs++
		q.metrics.RecordJob(action.Name(), outcomeDropped)
		return nil, fmt.Errorf("%w: maximum queue size (%d) reached", ErrQueueFull, q.maxJobs)
	}

	maxAttempts := 1
	if config.Enabled {
		maxAttempts = config.MaxRetries + 1
	}

	q.jobCounter++
	now := time.Now()
	job := &Job{
		ID:          fmt.Sprintf("job-%d", q.jobCounter),
		Action:      action,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		NextRetryAt: now,
		Status:      JobStatusPending,
		Config:      config,
	}

	q.jobs = append(q.jobs, job)
	q.stats.TotalJobs++
	q.metrics.SetQueueDepth(q.unfinishedLocked())
	return job, nil
}

// dropOldestPendingLocked must be called with q.mu held.
func (q *Queue) dropOldestPendingLocked() bool {
	oldestIdx := -1
	for i, job := range q.jobs {
		if job.Status != JobStatusPending && job.Status != JobStatusRetrying {
			continue
		}
		if oldestIdx == -1 || job.CreatedAt.Before(q.jobs[oldestIdx].CreatedAt) {
			oldestIdx = i
		}
	}
	if oldestIdx == -1 {
		return false
	}

	dropped := q.jobs[oldestIdx]
	q.jobs = append(q.jobs[:oldestIdx], q.jobs[oldestIdx+1:]...)
	q.stats.DroppedJobs++
	q.metrics.RecordJob(dropped.Action.Name(), outcomeDropped)
	q.log.Warn("dropped oldest outbox job",
		logger.String("job_id", dropped.ID),
		logger.String("action", dropped.Action.Name()))
	return true
}

func (q *Queue) unfinishedLocked() int {
	n := 0
	for _, job := range q.jobs {
		if job.Status != JobStatusCompleted && job.Status != JobStatusFailed {
			n++
		}
	}
	return n
}

func (q *Queue) processJobs(ctx context.Context, done chan<- struct{}, interval time.Duration) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.cleanupFinishedJobs()
			q.processDueJobs(ctx)
		}
	}
}

// cleanupFinishedJobs removes completed and failed jobs.
func (q *Queue) cleanupFinishedJobs() {
	q.mu.Lock()
	defer q.mu.Unlock()

	active := q.jobs[:0]
	for _, job := range q.jobs {
		if job.Status != JobStatusCompleted && job.Status != JobStatusFailed {
			active = append(active, job)
		}
	}
	clear(q.jobs[len(active):])
	q.jobs = active
}

// calculateBackoffDelay returns InitialDelay*Multiplier^(attempt-1) with
// ±10% jitter, capped at MaxDelay.
func calculateBackoffDelay(config RetryConfig, attempt int) time.Duration {
	backoff := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt-1))
	backoff *= 0.9 + 0.2*rand.Float64()

	if config.MaxDelay > 0 && backoff > float64(config.MaxDelay) {
		backoff = float64(config.MaxDelay)
	}
	return time.Duration(backoff)
}

func (q *Queue) processDueJobs(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	q.mu.Lock()
	var due []*Job
	now := time.Now()
	for _, job := range q.jobs {
		if (job.Status == JobStatusPending || job.Status == JobStatusRetrying) && !job.NextRetryAt.After(now) {
			job.Status = JobStatusRunning
			job.Attempts++
			due = append(due, job)
		}
	}
	timeout := q.execTimeout
	q.mu.Unlock()

	for _, job := range due {
		q.runningJobs.Add(1)
		go func(j *Job) {
			defer q.runningJobs.Done()
			q.executeJob(ctx, j, timeout)
		}(job)
	}
}

func (q *Queue) executeJob(ctx context.Context, job *Job, timeout time.Duration) {
	name := job.Action.Name()
	if job.Attempts > 1 {
		q.metrics.RecordRetry(name)
		q.log.Debug("retrying outbox job",
			logger.String("job_id", job.ID),
			logger.String("action", name),
			logger.Int("attempt", job.Attempts),
			logger.Int("max_attempts", job.MaxAttempts))
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("outbox action panicked: %v", r)
			}
		}()
		result <- job.Action.Execute(execCtx)
	}()

	var err error
	select {
	case err = <-result:
	case <-execCtx.Done():
		err = fmt.Errorf("outbox action %s aborted: %w", name, execCtx.Err())
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.stats.RetryAttempts++

	if err == nil {
		job.Status = JobStatusCompleted
		q.stats.SuccessfulJobs++
		q.metrics.RecordJob(name, outcomeCompleted)
		q.metrics.SetQueueDepth(q.unfinishedLocked())
		if job.Attempts > 1 {
			q.log.Info("outbox job succeeded after retry",
				logger.String("job_id", job.ID),
				logger.String("action", name),
				logger.Int("attempts", job.Attempts))
		}
		return
	}

	job.LastError = err
	if job.Attempts >= job.MaxAttempts || ctx.Err() != nil {
		job.Status = JobStatusFailed
		q.stats.FailedJobs++
		q.metrics.RecordJob(name, outcomeFailed)
		q.metrics.SetQueueDepth(q.unfinishedLocked())
		q.log.Warn("outbox job failed permanently",
			logger.String("job_id", job.ID),
			logger.String("action", name),
			logger.Int("attempts", job.Attempts),
			logger.Error(err))
		return
	}

	delay := calculateBackoffDelay(job.Config, job.Attempts)
	job.Status = JobStatusRetrying
	job.NextRetryAt = time.Now().Add(delay)
	q.log.Debug("outbox job failed, retry scheduled",
		logger.String("job_id", job.ID),
		logger.String("action", name),
		logger.Duration("delay", delay),
		logger.Error(err))
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.stats
	s.PendingJobs = q.unfinishedLocked()
	s.MaxQueueSize = q.maxJobs
	return s
}

// ProcessImmediately runs one processing pass without waiting for the ticker.
func (q *Queue) ProcessImmediately(ctx context.Context) {
	q.cleanupFinishedJobs()
	q.processDueJobs(ctx)
}

// Wait blocks until every started attempt has returned.
func (q *Queue) Wait() {
	q.runningJobs.Wait()
}
