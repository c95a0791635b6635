package analysis

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"golang.org/x/sync/errgroup"

	"github.com/leafnet/leafnet-go/internal/api"
	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/diskmanager"
	"github.com/leafnet/leafnet-go/internal/logger"
	"github.com/leafnet/leafnet-go/internal/mqtt"
	"github.com/leafnet/leafnet-go/internal/pipeline"
	"github.com/leafnet/leafnet-go/internal/trigger"
)

const (
	mqttRetryInterval    = 30 * time.Second
	scratchSweepInterval = 10 * time.Minute
)

// Serve runs the HTTP API, the trigger sources and the outbox until ctx is cancelled.
func Serve(ctx context.Context, settings *conf.Settings) error {
	log := GetLogger()
	logHostInfo(log)

	c, err := build(ctx, settings, buildOptions{connectMQTT: true, startOutbox: true})
	if err != nil {
		return err
	}
	defer c.Close()

	log.Info("starting LeafNet",
		logger.Float64("alert_threshold", c.Policy.Threshold()),
		logger.String("storage", c.Downloader.Name()),
		logger.String("database", c.Store.Dialect),
		logger.Bool("mqtt", c.MQTT != nil),
		logger.Bool("push", c.Pusher != nil),
		logger.Bool("outbox", c.Outbox != nil))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	sweeper := diskmanager.NewSweeper(settings.Pipeline.ScratchDirectory(),
		scratchMaxAge(settings.Pipeline.Timeout), scratchSweepInterval)
	g.Go(func() error { return sweeper.Run(gctx) })

	if settings.WebServer.Enabled {
		srv, err := api.New(settings,
			api.WithDataStore(c.Store),
			api.WithClassifier(c.Model.preprocessor, c.Model.classifier),
			api.WithMetrics(c.Metrics))
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Run(gctx) })
	}

	if settings.Pipeline.Poll.Enabled {
		poller := trigger.NewPoller(c.Store, c.Controller,
			settings.Pipeline.Poll.Interval, settings.Pipeline.Poll.BatchSize, settings.Pipeline.Workers)
		g.Go(func() error { return poller.Run(gctx) })
	}

	if c.MQTT != nil {
		g.Go(func() error {
			keepConnected(gctx, c.MQTT, mqttRetryInterval)
			return nil
		})
		if settings.MQTT.EventTopic != "" {
			src := trigger.NewMQTTSource(c.MQTT, settings.MQTT.EventTopic, c.Controller, settings.Pipeline.Workers)
			if err := src.Start(gctx); err != nil {
				return err
			}
			g.Go(func() error {
				<-gctx.Done()
				src.Stop()
				return nil
			})
		}
	}

	err = g.Wait()
	log.Info("LeafNet stopped")
	return err
}

// scratchMaxAge is how long a scratch file may live before it is treated as
// orphaned. Live records never outlast their timeout.
func scratchMaxAge(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		timeout = pipeline.DefaultTimeout
	}
	return 2 * timeout
}

// keepConnected retries the broker connection until ctx is done.
func keepConnected(ctx context.Context, client mqtt.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if client.IsConnected() {
				continue
			}
			if err := client.Connect(ctx); err != nil {
				GetLogger().Debug("MQTT reconnect attempt failed", logger.Error(err))
			}
		}
	}
}

func logHostInfo(log logger.Logger) {
	info, err := host.Info()
	if err != nil {
		log.Warn("failed to read host info", logger.Error(err))
		return
	}
	log.Info("system details",
		logger.String("os", info.OS),
		logger.String("platform", info.Platform),
		logger.String("platform_version", info.PlatformVersion),
		logger.String("arch", info.KernelArch))
}
