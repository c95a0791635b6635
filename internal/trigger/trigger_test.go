package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/mqtt"
	"github.com/leafnet/leafnet-go/internal/pipeline"
	"github.com/leafnet/leafnet-go/internal/testutil"
)

// fakeHandler records handled IDs and tracks peak concurrency
type fakeHandler struct {
	mu      sync.Mutex
	ids     []string
	active  atomic.Int32
	peak    atomic.Int32
	delay   time.Duration
	missing map[string]bool
}

func (h *fakeHandler) Handle(_ context.Context, rec *datastore.ImageRecord) (*pipeline.Report, error) {
	n := h.active.Add(1)
	defer h.active.Add(-1)
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.ids = append(h.ids, rec.ID)
	h.mu.Unlock()
	return &pipeline.Report{RecordID: rec.ID, Outcome: pipeline.OutcomeCompleted}, nil
}

func (h *fakeHandler) HandleByID(ctx context.Context, id string) (*pipeline.Report, error) {
	if h.missing[id] {
		return nil, errors.Newf("image record %s not found", id).Category(errors.CategoryNotFound).Build()
	}
	return h.Handle(ctx, &datastore.ImageRecord{ID: id})
}

func (h *fakeHandler) handled() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ids...)
}

type staticLister struct {
	records []datastore.ImageRecord
	limits  []int
}

func (l *staticLister) ListPendingImages(_ context.Context, limit int) ([]datastore.ImageRecord, error) {
	l.limits = append(l.limits, limit)
	if len(l.records) > limit {
		return l.records[:limit], nil
	}
	return l.records, nil
}

func TestPollOnceBoundsConcurrency(t *testing.T) {
	t.Parallel()

	lister := &staticLister{}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		lister.records = append(lister.records, datastore.ImageRecord{ID: id, Status: datastore.StatusPendingAnalysis})
	}
	h := &fakeHandler{delay: 20 * time.Millisecond}

	p := NewPoller(lister, h, time.Hour, 5, 2)
	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []int{5}, lister.limits)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, h.handled())
	assert.LessOrEqual(t, h.peak.Load(), int32(2))
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	lister := &staticLister{records: []datastore.ImageRecord{{ID: "only"}}}
	h := &fakeHandler{}
	p := NewPoller(lister, h, 10*time.Millisecond, 0, 0)

	stop := testutil.StartLoop(t, p.Run)
	require.Eventually(t, func() bool { return len(h.handled()) >= 2 }, time.Second, 5*time.Millisecond)
	stop()
}

func TestParseRecordEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		id      string
		ok      bool
		wantErr bool
	}{
		{"id only", `{"id":"r1"}`, "r1", true, false},
		{"pending snapshot", `{"id":"r2","status":"pending_analysis","image_path":"b/o.jpg"}`, "r2", true, false},
		{"completed snapshot", `{"id":"r3","status":"completed"}`, "r3", false, false},
		{"missing id", `{"status":"pending_analysis"}`, "", false, true},
		{"not json", `hello`, "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, ok, err := ParseRecordEvent([]byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

// fakeSubscriber keeps the registered handler so tests can deliver messages
type fakeSubscriber struct {
	mu      sync.Mutex
	topic   string
	handler mqtt.MessageHandler
	err     error
}

func (s *fakeSubscriber) Subscribe(_ context.Context, topic string, handler mqtt.MessageHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.topic = topic
	s.handler = handler
	return nil
}

func (s *fakeSubscriber) deliver(payload string) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	h(s.topic, []byte(payload))
}

func TestMQTTSourceDispatchesPendingRecords(t *testing.T) {
	t.Parallel()

	sub := &fakeSubscriber{}
	h := &fakeHandler{missing: map[string]bool{"ghost": true}}
	src := NewMQTTSource(sub, "leafnet/records", h, 2)
	require.NoError(t, src.Start(context.Background()))
	assert.Equal(t, "leafnet/records", sub.topic)

	sub.deliver(`{"id":"r1"}`)
	sub.deliver(`{"id":"r2","status":"completed"}`)
	sub.deliver(`garbage`)
	sub.deliver(`{"id":"ghost"}`)
	sub.deliver(`{"id":"r3","status":"pending_analysis"}`)

	src.Stop()
	assert.ElementsMatch(t, []string{"r1", "r3"}, h.handled())

	// Messages after Stop are dropped.
	sub.deliver(`{"id":"r4"}`)
	assert.Len(t, h.handled(), 2)
}

func TestMQTTSourceStartErrors(t *testing.T) {
	t.Parallel()

	src := NewMQTTSource(&fakeSubscriber{}, "", &fakeHandler{}, 1)
	require.Error(t, src.Start(context.Background()))

	sub := &fakeSubscriber{err: errors.NewStd("not connected")}
	src = NewMQTTSource(sub, "leafnet/records", &fakeHandler{}, 1)
	require.Error(t, src.Start(context.Background()))
}

func TestMQTTSourceStopDrainsAcceptedEvents(t *testing.T) {
	t.Parallel()

	sub := &fakeSubscriber{}
	h := &fakeHandler{delay: 20 * time.Millisecond}
	src := NewMQTTSource(sub, "leafnet/records", h, 1)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, src.Start(ctx))

	sub.deliver(`{"id":"a"}`)
	sub.deliver(`{"id":"b"}`)
	sub.deliver(`{"id":"c"}`)

	// The serving context going away must not drop what was already accepted.
	cancel()
	src.Stop()

	assert.ElementsMatch(t, []string{"a", "b", "c"}, h.handled())
	assert.LessOrEqual(t, h.peak.Load(), int32(1))
}

// blockingHandler waits for its context and reports why it ended
type blockingHandler struct {
	started chan struct{}
	ended   chan error
}

func (h *blockingHandler) Handle(ctx context.Context, rec *datastore.ImageRecord) (*pipeline.Report, error) {
	close(h.started)
	<-ctx.Done()
	h.ended <- ctx.Err()
	return &pipeline.Report{RecordID: rec.ID, Outcome: pipeline.OutcomeSkipped}, nil
}

func (h *blockingHandler) HandleByID(ctx context.Context, id string) (*pipeline.Report, error) {
	return h.Handle(ctx, &datastore.ImageRecord{ID: id})
}

func TestMQTTSourceStopCancelsAfterDrainTimeout(t *testing.T) {
	t.Parallel()

	sub := &fakeSubscriber{}
	h := &blockingHandler{started: make(chan struct{}), ended: make(chan error, 1)}
	src := NewMQTTSource(sub, "leafnet/records", h, 1)
	src.SetDrainTimeout(20 * time.Millisecond)
	require.NoError(t, src.Start(context.Background()))

	sub.deliver(`{"id":"slow"}`)
	testutil.WaitForChannel(t, h.started, testutil.ShortTestTimeout, "handler did not start")

	src.Stop()
	err := testutil.WaitForChannel(t, h.ended, testutil.ShortTestTimeout, "handler was not cancelled")
	require.ErrorIs(t, err, context.Canceled)
}
