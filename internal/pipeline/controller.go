// Package pipeline drives one image record from pending_analysis to a
// terminal state: claim, download, preprocess, classify, persist, then
// best-effort side effects (device summary, alert, push, MQTT).
package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/leafnet"
	"github.com/leafnet/leafnet-go/internal/logger"
	"github.com/leafnet/leafnet-go/internal/notification"
	"github.com/leafnet/leafnet-go/internal/observability/metrics"
	"github.com/leafnet/leafnet-go/internal/outbox"
	"github.com/leafnet/leafnet-go/internal/storage"
)

const (
	// failWriteTimeout bounds the error-state write after the record context expired.
	failWriteTimeout = 10 * time.Second
	// DefaultTimeout bounds a single record when none is configured.
	DefaultTimeout = 2 * time.Minute
)

// Store is the subset of the datastore the pipeline writes to.
type Store interface {
	GetImage(ctx context.Context, id string) (*datastore.ImageRecord, error)
	ClaimImage(ctx context.Context, id string) (bool, error)
	CompleteImage(ctx context.Context, id string, c *datastore.Completion) error
	FailImage(ctx context.Context, id, message string, at time.Time) error
	UpsertDeviceSummary(ctx context.Context, s *datastore.DeviceSummary) error
	SaveAlert(ctx context.Context, a *datastore.AlertRecord) error
}

// Pusher delivers alerts to push services.
type Pusher interface {
	Send(ctx context.Context, alert *datastore.AlertRecord) error
}

// Publisher publishes raw payloads to a message broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Config wires the controller's collaborators. Store, Downloader,
// Preprocessor, Classifier and Policy are required.
type Config struct {
	Store        Store
	Downloader   storage.Downloader
	Preprocessor *leafnet.Preprocessor
	Classifier   *leafnet.Classifier
	Policy       *notification.Policy

	// Effects defaults to Immediate.
	Effects    SideEffects
	Pusher     Pusher
	Publisher  Publisher
	AlertTopic string

	ScratchDir string
	Timeout    time.Duration
	Clock      func() time.Time
	Metrics    *metrics.PipelineMetrics
}

// Controller processes image records.
type Controller struct {
	cfg Config
}

// NewController validates cfg and fills defaults.
func NewController(cfg Config) (*Controller, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.ValidationError("pipeline: store is required")
	case cfg.Downloader == nil:
		return nil, errors.ValidationError("pipeline: downloader is required")
	case cfg.Preprocessor == nil:
		return nil, errors.ValidationError("pipeline: preprocessor is required")
	case cfg.Classifier == nil:
		return nil, errors.ValidationError("pipeline: classifier is required")
	case cfg.Policy == nil:
		return nil, errors.ValidationError("pipeline: alert policy is required")
	}
	if cfg.Effects == nil {
		cfg.Effects = Immediate{}
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	if err := os.MkdirAll(cfg.ScratchDir, 0o750); err != nil {
		return nil, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryFileIO).
			Context("scratch_dir", cfg.ScratchDir).
			Build()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Controller{cfg: cfg}, nil
}

// HandleByID loads the record and handles it.
func (c *Controller) HandleByID(ctx context.Context, id string) (*Report, error) {
	rec, err := c.cfg.Store.GetImage(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Handle(ctx, rec)
}

// Handle processes rec. Replays and duplicate deliveries are skipped.
// Step failures move the record to error and are reported in Report.Err;
// the returned error is non-nil only when the store itself failed.
// Cancelling ctx aborts the run without writing a terminal status; the
// per-record timeout still counts as a failure.
func (c *Controller) Handle(ctx context.Context, rec *datastore.ImageRecord) (*Report, error) {
	start := time.Now()
	log := GetLogger().With(logger.String("record_id", rec.ID))
	report := &Report{RecordID: rec.ID}

	if rec.Status != datastore.StatusPendingAnalysis {
		report.Outcome = OutcomeSkipped
		report.SkipReason = "status " + string(rec.Status)
		log.Debug("skipping record", logger.String("status", string(rec.Status)))
		c.cfg.Metrics.RecordOutcome(metrics.StatusSkipped, 0, nil)
		return report, nil
	}

	claimed, err := c.cfg.Store.ClaimImage(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		report.Outcome = OutcomeSkipped
		report.SkipReason = "claimed by another worker"
		log.Debug("record already claimed")
		c.cfg.Metrics.RecordOutcome(metrics.StatusSkipped, 0, nil)
		return report, nil
	}

	c.cfg.Metrics.IncActive()
	defer c.cfg.Metrics.DecActive()

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	result, stepErr := c.classify(runCtx, rec)
	if stepErr == nil {
		stepErr = c.cfg.Store.CompleteImage(runCtx, rec.ID, &datastore.Completion{
			Classification: result.Class,
			Confidence:     result.Confidence,
			Probabilities:  toStoredProbabilities(result.Probabilities),
			ProcessedAt:    c.cfg.Clock(),
		})
	}

	report.Duration = time.Since(start)
	if stepErr != nil && ctx.Err() != nil {
		// Shutdown is not a record failure; error is terminal.
		report.Outcome = OutcomeAborted
		report.Err = ctx.Err()
		c.cfg.Metrics.RecordOutcome(string(OutcomeAborted), report.Duration.Seconds(), nil)
		log.Warn("record analysis aborted, left in processing",
			logger.Error(stepErr),
			logger.Duration("duration", report.Duration))
		return report, nil
	}
	if stepErr != nil {
		report.Outcome = OutcomeFailed
		report.Err = stepErr
		c.cfg.Metrics.RecordOutcome(string(OutcomeFailed), report.Duration.Seconds(), stepErr)
		log.Warn("record analysis failed", logger.Error(stepErr), logger.Duration("duration", report.Duration))

		failCtx, failCancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
		defer failCancel()
		if err := c.cfg.Store.FailImage(failCtx, rec.ID, stepErr.Error(), c.cfg.Clock()); err != nil {
			return report, err
		}
		return report, nil
	}

	report.Outcome = OutcomeCompleted
	report.Result = result
	c.cfg.Metrics.RecordOutcome(string(OutcomeCompleted), report.Duration.Seconds(), nil)
	log.Info("record classified",
		logger.String("class", result.Class),
		logger.Float64("confidence", result.Confidence),
		logger.Duration("duration", report.Duration))

	c.dispatchEffects(context.WithoutCancel(ctx), rec, result)
	return report, nil
}

// classify downloads the image into a scratch file and runs the model on it.
// The scratch file is removed before returning.
func (c *Controller) classify(ctx context.Context, rec *datastore.ImageRecord) (*leafnet.Result, error) {
	loc, err := storage.ParseLocator(rec.ImagePath)
	if err != nil {
		return nil, err
	}

	scratch, err := os.CreateTemp(c.cfg.ScratchDir, "leafnet-*"+filepath.Ext(loc.Object))
	if err != nil {
		return nil, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryFileIO).
			Context("scratch_dir", c.cfg.ScratchDir).
			Build()
	}
	scratchPath := scratch.Name()
	defer func() {
		if rmErr := os.Remove(scratchPath); rmErr != nil && !os.IsNotExist(rmErr) {
			GetLogger().Warn("failed to remove scratch file",
				logger.String("path", scratchPath),
				logger.Error(rmErr))
		}
	}()

	n, err := c.cfg.Downloader.Download(ctx, loc, scratch)
	closeErr := scratch.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, errors.New(closeErr).
			Component("pipeline").
			Category(errors.CategoryFileIO).
			FileContext(scratchPath, n).
			Build()
	}
	c.cfg.Metrics.ObserveDownload(n)

	tensor, err := c.cfg.Preprocessor.Preprocess(scratchPath)
	if err != nil {
		return nil, err
	}
	return c.cfg.Classifier.Classify(ctx, tensor)
}

// dispatchEffects submits the best-effort writes that follow a completion.
func (c *Controller) dispatchEffects(ctx context.Context, rec *datastore.ImageRecord, result *leafnet.Result) {
	processedAt := c.cfg.Clock()
	summary := &datastore.DeviceSummary{
		DeviceID:       rec.DeviceID,
		LatestResult:   FormatSummary(result.Class, result.Confidence),
		LatestAnalysis: processedAt,
	}
	if rec.DeviceID != "" {
		c.submit(ctx, "device_summary", func(ctx context.Context) error {
			return c.cfg.Store.UpsertDeviceSummary(ctx, summary)
		})
	}

	alert := c.cfg.Policy.MaybeNotify(rec.DeviceID, rec.ImagePath, result)
	if alert == nil {
		return
	}
	// A fixed ID keeps retried saves idempotent and ties the MQTT event to the row.
	alert.ID = uuid.NewString()
	c.cfg.Metrics.IncAlerts()
	GetLogger().Info("disease alert raised",
		logger.String("record_id", rec.ID),
		logger.String("alert_id", alert.ID),
		logger.String("class", result.Class))

	c.submit(ctx, "save_alert", func(ctx context.Context) error {
		return c.cfg.Store.SaveAlert(ctx, alert)
	})
	if c.cfg.Pusher != nil {
		c.submit(ctx, "push_alert", func(ctx context.Context) error {
			return c.cfg.Pusher.Send(ctx, alert)
		})
	}
	if c.cfg.Publisher != nil && c.cfg.AlertTopic != "" {
		payload, err := json.Marshal(newAlertEvent(rec.ID, alert, result))
		if err != nil {
			GetLogger().Warn("failed to encode alert event", logger.Error(err))
			return
		}
		c.submit(ctx, "publish_alert", func(ctx context.Context) error {
			return c.cfg.Publisher.Publish(ctx, c.cfg.AlertTopic, payload)
		})
	}
}

func (c *Controller) submit(ctx context.Context, name string, fn func(context.Context) error) {
	m := c.cfg.Metrics
	c.cfg.Effects.Submit(ctx, outbox.NewAction(name, func(ctx context.Context) error {
		err := fn(ctx)
		m.RecordSideEffect(name, err)
		return err
	}))
}
