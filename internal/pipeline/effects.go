package pipeline

import (
	"context"

	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/logger"
	"github.com/leafnet/leafnet-go/internal/outbox"
)

// SideEffects accepts best-effort work that must never fail the pipeline.
type SideEffects interface {
	Submit(ctx context.Context, action outbox.Action)
}

// Immediate runs each action inline and logs failures.
type Immediate struct{}

// Submit runs action now. Failures are logged as persistence errors.
func (Immediate) Submit(ctx context.Context, action outbox.Action) {
	if err := action.Execute(ctx); err != nil {
		perr := errors.New(err).
			Component("pipeline").
			Category(errors.CategoryPersistence).
			Context("effect", action.Name()).
			Build()
		GetLogger().Warn("side effect failed",
			logger.String("effect", action.Name()),
			logger.Error(perr))
	}
}

// Queued hands actions to an outbox queue for retried execution.
type Queued struct {
	queue    *outbox.Queue
	retry    outbox.RetryConfig
	fallback Immediate
}

// NewQueued returns a Queued submitter using retry for every action.
func NewQueued(queue *outbox.Queue, retry outbox.RetryConfig) *Queued {
	return &Queued{queue: queue, retry: retry}
}

// Submit enqueues action. When the queue refuses it the action runs inline.
func (q *Queued) Submit(ctx context.Context, action outbox.Action) {
	if _, err := q.queue.Enqueue(action, q.retry); err != nil {
		GetLogger().Warn("outbox rejected side effect, running inline",
			logger.String("effect", action.Name()),
			logger.Error(err))
		q.fallback.Submit(ctx, action)
	}
}
