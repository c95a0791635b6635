package leafnet

import (
	"context"
	"sync"
	"time"

	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/logger"
	"github.com/leafnet/leafnet-go/internal/observability/metrics"
)

// ModelCache lazily loads a Model on first use and keeps it for the
// lifetime of the process. Concurrent first callers wait for one load.
// A failed load leaves the cache empty so the next Get retries.
type ModelCache struct {
	mu      sync.Mutex
	loader  ModelLoader
	model   Model
	metrics *metrics.LeafNetMetrics
}

// NewModelCache creates an empty cache around loader.
func NewModelCache(loader ModelLoader) *ModelCache {
	return &ModelCache{loader: loader}
}

// SetMetrics attaches model load metrics. nil disables them.
func (c *ModelCache) SetMetrics(m *metrics.LeafNetMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// Get returns the cached model, loading it if necessary.
func (c *ModelCache) Get(ctx context.Context) (Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.model != nil {
		return c.model, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("leafnet").
			Category(errors.CategoryCancellation).
			Context("operation", "model-load").
			Build()
	}

	start := time.Now()
	model, err := c.loader(ctx)
	if err == nil && model == nil {
		err = errors.Newf("model loader returned no model").
			Component("leafnet").
			Category(errors.CategoryModelLoad).
			Build()
	}
	c.metrics.RecordModelLoad(err)

	if err != nil {
		GetLogger().Error("model load failed",
			logger.Error(err),
			logger.Duration("elapsed", time.Since(start)))
		if errors.IsCategory(err, errors.CategoryModelLoad) {
			return nil, err
		}
		return nil, errors.New(err).
			Component("leafnet").
			Category(errors.CategoryModelLoad).
			Timing("model-load", time.Since(start)).
			Build()
	}

	c.model = model
	return c.model, nil
}

// Loaded reports whether a model is cached.
func (c *ModelCache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model != nil
}

// Close releases the cached model. A later Get loads it again.
func (c *ModelCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.model == nil {
		return nil
	}
	err := c.model.Close()
	c.model = nil
	c.metrics.RecordModelUnload()
	return err
}
