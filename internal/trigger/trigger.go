// Package trigger feeds image records into the pipeline, either by polling
// the store for pending records or by reacting to broker events.
package trigger

import (
	"context"

	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/pipeline"
)

// DefaultWorkers is the concurrency used when none is configured.
const DefaultWorkers = 2

// Handler processes records; *pipeline.Controller implements it.
type Handler interface {
	Handle(ctx context.Context, rec *datastore.ImageRecord) (*pipeline.Report, error)
	HandleByID(ctx context.Context, id string) (*pipeline.Report, error)
}

var _ Handler = (*pipeline.Controller)(nil)

func workerCount(n int) int64 {
	if n <= 0 {
		return DefaultWorkers
	}
	return int64(n)
}
