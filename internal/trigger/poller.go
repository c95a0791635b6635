package trigger

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/logger"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 50
)

// PendingLister lists records waiting for analysis.
type PendingLister interface {
	ListPendingImages(ctx context.Context, limit int) ([]datastore.ImageRecord, error)
}

// Poller periodically hands pending records to a Handler.
type Poller struct {
	store     PendingLister
	handler   Handler
	interval  time.Duration
	batchSize int
	sem       *semaphore.Weighted
	log       logger.Logger
}

// NewPoller creates a poller. Zero values select defaults.
func NewPoller(store PendingLister, handler Handler, interval time.Duration, batchSize, workers int) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Poller{
		store:     store,
		handler:   handler,
		interval:  interval,
		batchSize: batchSize,
		sem:       semaphore.NewWeighted(workerCount(workers)),
		log:       GetLogger().With(logger.String("source", "poller")),
	}
}

// Run polls until ctx is cancelled. In-flight records finish before it returns.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poller started",
		logger.Duration("interval", p.interval),
		logger.Int("batch_size", p.batchSize))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("poll failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			p.log.Info("poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce dispatches one batch of pending records and waits for it.
// It returns the number of records dispatched.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	records, err := p.store.ListPendingImages(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	dispatched := 0
	for i := range records {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			break
		}
		dispatched++
		rec := &records[i]
		wg.Go(func() {
			defer p.sem.Release(1)
			if _, err := p.handler.Handle(ctx, rec); err != nil {
				p.log.Error("record handling failed",
					logger.String("record_id", rec.ID),
					logger.Error(err))
			}
		})
	}
	wg.Wait()

	p.log.Debug("poll batch done", logger.Int("dispatched", dispatched))
	return dispatched, ctx.Err()
}
