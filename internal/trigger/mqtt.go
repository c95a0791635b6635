package trigger

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/logger"
	"github.com/leafnet/leafnet-go/internal/mqtt"
)

// Subscriber is the part of the MQTT client the event source needs.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler mqtt.MessageHandler) error
}

// recordEvent is an image record create/update notification. Producers send
// either {"id": "..."} or a full record snapshot.
type recordEvent struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// DefaultDrainTimeout bounds how long Stop waits for accepted events
// before cancelling them.
const DefaultDrainTimeout = 30 * time.Second

// MQTTSource handles record events arriving on an MQTT topic.
type MQTTSource struct {
	sub          Subscriber
	topic        string
	handler      Handler
	sem          *semaphore.Weighted
	wg           sync.WaitGroup
	drainTimeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	log     logger.Logger
}

// NewMQTTSource creates an event source for topic.
func NewMQTTSource(sub Subscriber, topic string, handler Handler, workers int) *MQTTSource {
	return &MQTTSource{
		sub:     sub,
		topic:   topic,
		handler: handler,
		sem:          semaphore.NewWeighted(workerCount(workers)),
		drainTimeout: DefaultDrainTimeout,
		log:          GetLogger().With(logger.String("source", "mqtt"), logger.String("topic", topic)),
	}
}

// SetDrainTimeout overrides DefaultDrainTimeout.
func (s *MQTTSource) SetDrainTimeout(d time.Duration) {
	s.drainTimeout = d
}

// Start subscribes to the event topic. Records are handled with ctx's
// values but are only cancelled by Stop, so accepted events survive the
// caller's shutdown long enough to drain.
func (s *MQTTSource) Start(ctx context.Context) error {
	if s.topic == "" {
		return errors.ValidationError("trigger: event topic is empty")
	}
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.stopped = false
	s.mu.Unlock()

	if err := s.sub.Subscribe(ctx, s.topic, s.onMessage); err != nil {
		s.Stop()
		return err
	}
	s.log.Info("listening for record events")
	return nil
}

// Stop refuses new events and waits for accepted ones. Work still running
// after the drain timeout is cancelled.
func (s *MQTTSource) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.log.Warn("record events still running after drain timeout, cancelling",
			logger.Duration("timeout", s.drainTimeout))
		cancel()
		<-done
	}
	cancel()
}

// ParseRecordEvent extracts the record ID from an event payload.
// ok is false for events that need no processing.
func ParseRecordEvent(payload []byte) (id string, ok bool, err error) {
	var ev recordEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return "", false, errors.New(err).
			Component("trigger").
			Category(errors.CategoryValidation).
			Context("operation", "decode_record_event").
			Build()
	}
	ev.ID = strings.TrimSpace(ev.ID)
	if ev.ID == "" {
		return "", false, errors.ValidationError("record event has no id")
	}
	if ev.Status != "" && ev.Status != string(datastore.StatusPendingAnalysis) {
		return ev.ID, false, nil
	}
	return ev.ID, true, nil
}

// onMessage runs on the MQTT client goroutine and must not block on processing.
func (s *MQTTSource) onMessage(_ string, payload []byte) {
	id, ok, err := ParseRecordEvent(payload)
	if err != nil {
		s.log.Warn("ignoring malformed record event", logger.Error(err))
		return
	}
	if !ok {
		s.log.Debug("ignoring non-pending record event", logger.String("record_id", id))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.ctx
	if ctx == nil || s.stopped {
		return
	}

	s.wg.Go(func() {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer s.sem.Release(1)
		if _, err := s.handler.HandleByID(ctx, id); err != nil {
			if errors.IsNotFound(err) {
				s.log.Warn("record event for unknown record", logger.String("record_id", id))
				return
			}
			s.log.Error("record handling failed", logger.String("record_id", id), logger.Error(err))
		}
	})
}
