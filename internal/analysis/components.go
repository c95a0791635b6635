// Package analysis assembles LeafNet's components from settings and runs
// them in the modes exposed by the CLI.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/leafnet"
	"github.com/leafnet/leafnet-go/internal/logger"
	"github.com/leafnet/leafnet-go/internal/mqtt"
	"github.com/leafnet/leafnet-go/internal/notification"
	"github.com/leafnet/leafnet-go/internal/observability"
	"github.com/leafnet/leafnet-go/internal/outbox"
	"github.com/leafnet/leafnet-go/internal/pipeline"
	"github.com/leafnet/leafnet-go/internal/storage"
)

const outboxStopTimeout = 15 * time.Second

// classifierSet is the model side of the system.
type classifierSet struct {
	cache        *leafnet.ModelCache
	preprocessor *leafnet.Preprocessor
	classifier   *leafnet.Classifier
}

// initClassifier prepares the lazily loaded model and its pre-processing.
func initClassifier(settings *conf.Settings, m *observability.Metrics) (*classifierSet, error) {
	labels, err := leafnet.LoadLabels(settings.Model.LabelsPath)
	if err != nil {
		return nil, err
	}

	cache := leafnet.NewModelCache(leafnet.NewTFLiteLoader(&settings.Model))
	pre := leafnet.NewPreprocessor(settings.Model.InputSize)
	classifier, err := leafnet.NewClassifier(cache, labels)
	if err != nil {
		return nil, err
	}
	if m != nil {
		cache.SetMetrics(m.LeafNet)
		pre.SetMetrics(m.LeafNet)
		classifier.SetMetrics(m.LeafNet)
	}

	GetLogger().Info("classifier configured",
		logger.String("model", settings.Model.Path),
		logger.Int("labels", len(labels)),
		logger.Int("input_size", pre.Size()))
	return &classifierSet{cache: cache, preprocessor: pre, classifier: classifier}, nil
}

// Components is everything the pipeline needs, wired from settings.
type Components struct {
	Settings   *conf.Settings
	Metrics    *observability.Metrics
	Store      *datastore.DataStore
	Downloader storage.Downloader
	Model      *classifierSet
	Policy     *notification.Policy
	Pusher     *notification.PushSender
	MQTT       mqtt.Client
	Outbox     *outbox.Queue
	Controller *pipeline.Controller
}

// buildOptions selects optional parts of the component graph.
type buildOptions struct {
	connectMQTT bool
	startOutbox bool
}

// build wires components. Partially built components are closed on error.
func build(ctx context.Context, settings *conf.Settings, opts buildOptions) (c *Components, err error) {
	c = &Components{Settings: settings}
	defer func() {
		if err != nil {
			c.Close()
			c = nil
		}
	}()

	if c.Metrics, err = observability.NewMetrics(); err != nil {
		return nil, fmt.Errorf("error initializing metrics: %w", err)
	}
	if c.Store, err = datastore.New(&settings.Database); err != nil {
		return nil, err
	}
	if c.Downloader, err = storage.New(ctx, &settings.Storage); err != nil {
		return nil, err
	}
	if c.Model, err = initClassifier(settings, c.Metrics); err != nil {
		return nil, err
	}

	c.Policy = notification.NewPolicy(settings.Pipeline.AlertThreshold, settings.Pipeline.HealthyLabel)

	if settings.Notification.Push.Enabled {
		if c.Pusher, err = notification.NewPushSender(&settings.Notification.Push); err != nil {
			return nil, err
		}
		c.Pusher.SetMetrics(c.Metrics.Notification)
	}

	if opts.connectMQTT && settings.MQTT.Enabled {
		c.MQTT = mqtt.NewClient(mqtt.ConfigFromSettings(&settings.MQTT), c.Metrics.MQTT)
		if err = c.MQTT.Connect(ctx); err != nil {
			// serve retries until the broker is reachable
			GetLogger().Warn("initial MQTT connection failed", logger.Error(err))
			err = nil
		}
	}

	var effects pipeline.SideEffects = pipeline.Immediate{}
	if opts.startOutbox && settings.Outbox.Enabled {
		c.Outbox = outbox.NewQueue(settings.Outbox.QueueSize)
		c.Outbox.SetMetrics(c.Metrics.Outbox)
		c.Outbox.Start(ctx)
		effects = pipeline.NewQueued(c.Outbox, outbox.RetryConfigFromSettings(&settings.Outbox))
	}

	cfg := pipeline.Config{
		Store:        c.Store,
		Downloader:   c.Downloader,
		Preprocessor: c.Model.preprocessor,
		Classifier:   c.Model.classifier,
		Policy:       c.Policy,
		Effects:      effects,
		ScratchDir:   settings.Pipeline.ScratchDirectory(),
		Timeout:      settings.Pipeline.Timeout,
		Metrics:      c.Metrics.Pipeline,
	}
	if c.Pusher != nil {
		cfg.Pusher = c.Pusher
	}
	if c.MQTT != nil {
		cfg.Publisher = c.MQTT
		cfg.AlertTopic = settings.MQTT.AlertTopic
	}
	if c.Controller, err = pipeline.NewController(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases components in reverse dependency order.
func (c *Components) Close() {
	if c == nil {
		return
	}
	log := GetLogger()
	if c.Outbox != nil {
		if err := c.Outbox.Stop(outboxStopTimeout); err != nil {
			log.Warn("outbox did not drain", logger.Error(err))
		}
	}
	if c.MQTT != nil {
		c.MQTT.Disconnect()
	}
	if c.Model != nil {
		if err := c.Model.cache.Close(); err != nil {
			log.Warn("failed to close model", logger.Error(err))
		}
	}
	if c.Downloader != nil {
		if err := c.Downloader.Close(); err != nil {
			log.Warn("failed to close storage client", logger.Error(err))
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			log.Warn("failed to close datastore", logger.Error(err))
		}
	}
}
