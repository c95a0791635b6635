package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"time"

	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/logger"
	"github.com/leafnet/leafnet-go/internal/observability/metrics"
	"github.com/leafnet/leafnet-go/internal/privacy"
	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"golang.org/x/time/rate"
)

const providerName = "shoutrrr"

// messageSender is the part of the shoutrrr router used here.
type messageSender interface {
	Send(message string, params *stypes.Params) []error
}

// PushSender delivers alerts to every configured shoutrrr URL.
type PushSender struct {
	urls    []string
	sender  messageSender
	limiter *rate.Limiter
	metrics *metrics.NotificationMetrics
}

// NewPushSender validates the URLs and builds the shoutrrr router.
func NewPushSender(settings *conf.PushSettings) (*PushSender, error) {
	if len(settings.URLs) == 0 {
		return nil, errors.Newf("at least one push URL is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	router, err := shoutrrr.CreateSender(settings.URLs...)
	if err != nil {
		return nil, errors.New(privacy.ScrubError(err)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("url_count", len(settings.URLs)).
			Build()
	}
	if settings.Timeout > 0 {
		router.Timeout = settings.Timeout
	}
	router.SetLogger(log.New(io.Discard, "", 0))

	return newPushSender(settings, router), nil
}

func newPushSender(settings *conf.PushSettings, sender messageSender) *PushSender {
	return &PushSender{
		urls:    slices.Clone(settings.URLs),
		sender:  sender,
		limiter: newLimiter(settings.RateLimit, settings.Burst),
	}
}

// newLimiter allows perMinute sends per minute with the given burst.
// Non-positive perMinute disables limiting.
func newLimiter(perMinute, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}

// SetMetrics attaches delivery metrics. nil disables them.
func (s *PushSender) SetMetrics(m *metrics.NotificationMetrics) {
	s.metrics = m
}

// Send pushes alert to all services. A rate-limited send fails so the
// caller can retry later.
func (s *PushSender) Send(ctx context.Context, alert *datastore.AlertRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.limiter.Allow() {
		s.metrics.RecordRateLimited(providerName)
		return errors.Newf("push rate limit exceeded").
			Component("notification").
			Category(errors.CategoryNotification).
			Context("reason", "rate_limited").
			Context("device_id", alert.DeviceID).
			Build()
	}

	params := stypes.Params{}
	params.SetTitle(alert.Title)

	start := time.Now()
	errs := s.sender.Send(alert.Message, &params)
	err := firstError(errs)
	s.metrics.RecordDelivery(providerName, time.Since(start), err)

	if err != nil {
		return errors.New(privacy.ScrubError(err)).
			Component("notification").
			Category(errors.CategoryNotification).
			Context("device_id", alert.DeviceID).
			Context("url_count", len(s.urls)).
			Timing("push_send", time.Since(start)).
			Build()
	}

	GetLogger().Debug("alert pushed",
		logger.String("device_id", alert.DeviceID),
		logger.String("alert_id", alert.ID),
		logger.Duration("duration", time.Since(start)))
	return nil
}

func firstError(errs []error) error {
	for _, e := range errs {
		if e != nil {
			return fmt.Errorf("push delivery failed: %w", e)
		}
	}
	return nil
}
