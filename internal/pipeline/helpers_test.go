package pipeline

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/leafnet"
	"github.com/leafnet/leafnet-go/internal/notification"
	"github.com/leafnet/leafnet-go/internal/storage"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// stubModel returns a fixed distribution and counts predictions
type stubModel struct {
	mu     sync.Mutex
	output []float32
	err    error
	calls  int
}

func (m *stubModel) Predict([]float32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]float32, len(m.output))
	copy(out, m.output)
	return out, nil
}

func (m *stubModel) Close() error { return nil }

func (m *stubModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// recordingPublisher captures MQTT publishes
type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return nil
}

// recordingPusher captures push deliveries
type recordingPusher struct {
	mu     sync.Mutex
	alerts []*datastore.AlertRecord
}

func (p *recordingPusher) Send(_ context.Context, a *datastore.AlertRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return nil
}

type fixture struct {
	store   *datastore.DataStore
	root    string
	scratch string
	model   *stubModel
	pub     *recordingPublisher
	push    *recordingPusher
	ctrl    *Controller
}

// newFixture wires a controller over a temp SQLite store and a local bucket.
// output is the distribution the model returns, in default label order.
func newFixture(t *testing.T, output ...float32) *fixture {
	t.Helper()
	return newFixtureWithDownloader(t, nil, output...)
}

// newFixtureWithDownloader is newFixture with dl replacing the local bucket
// downloader when non-nil.
func newFixtureWithDownloader(t *testing.T, dl storage.Downloader, output ...float32) *fixture {
	t.Helper()

	ds, err := datastore.OpenSQLite(filepath.Join(t.TempDir(), "pipeline.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })

	root := t.TempDir()
	if dl == nil {
		dl, err = storage.NewLocalDownloader(root)
		require.NoError(t, err)
	}

	model := &stubModel{output: output}
	cache := leafnet.NewModelCache(func(context.Context) (leafnet.Model, error) { return model, nil })
	t.Cleanup(func() { _ = cache.Close() })
	classifier, err := leafnet.NewClassifier(cache, leafnet.DefaultLabels())
	require.NoError(t, err)

	f := &fixture{
		store:   ds,
		root:    root,
		scratch: t.TempDir(),
		model:   model,
		pub:     &recordingPublisher{},
		push:    &recordingPusher{},
	}
	f.ctrl, err = NewController(Config{
		Store:        ds,
		Downloader:   dl,
		Preprocessor: leafnet.NewPreprocessor(8),
		Classifier:   classifier,
		Policy:       notification.NewPolicy(0.70, leafnet.HealthyLabel).WithClock(func() time.Time { return fixedNow }),
		Pusher:       f.push,
		Publisher:    f.pub,
		AlertTopic:   "leafnet/alerts",
		ScratchDir:   f.scratch,
		Timeout:      5 * time.Second,
		Clock:        func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return f
}

// blockingDownloader signals when a download starts, then waits for ctx.
type blockingDownloader struct {
	started chan struct{}
}

func (d *blockingDownloader) Name() string { return "blocking" }
func (d *blockingDownloader) Close() error { return nil }

func (d *blockingDownloader) Download(ctx context.Context, _ storage.Locator, _ io.Writer) (int64, error) {
	close(d.started)
	<-ctx.Done()
	return 0, ctx.Err()
}

// putBytes writes raw bytes into the bucket at container/object.
func (f *fixture) putBytes(t *testing.T, container, object string, data []byte) {
	t.Helper()

	path := filepath.Join(f.root, container, filepath.FromSlash(object))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

// putImage writes a small PNG into the bucket at container/object.
func (f *fixture) putImage(t *testing.T, container, object string) {
	t.Helper()

	path := filepath.Join(f.root, container, filepath.FromSlash(object))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := range 16 {
		for x := range 16 {
			img.Set(x, y, color.RGBA{R: 40, G: 160, B: 60, A: 255})
		}
	}
	out, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(out, img))
	require.NoError(t, out.Close())
}

// newRecord inserts a pending record pointing at imagePath.
func (f *fixture) newRecord(t *testing.T, imagePath, device string) *datastore.ImageRecord {
	t.Helper()

	rec := &datastore.ImageRecord{ImagePath: imagePath, DeviceID: device}
	require.NoError(t, f.store.CreateImage(context.Background(), rec))
	return rec
}

// normalizeRecord strips monotonic readings and zones so records read back
// from the store compare with assert.Equal.
func normalizeRecord(r *datastore.ImageRecord) datastore.ImageRecord {
	n := *r
	n.CreatedAt = n.CreatedAt.UTC().Round(0)
	n.UpdatedAt = n.UpdatedAt.UTC().Round(0)
	if n.ProcessedAt != nil {
		processed := n.ProcessedAt.UTC().Round(0)
		n.ProcessedAt = &processed
	}
	return n
}

// scratchEntries lists what is left in the scratch directory.
func (f *fixture) scratchEntries(t *testing.T) []os.DirEntry {
	t.Helper()

	entries, err := os.ReadDir(f.scratch)
	require.NoError(t, err)
	return entries
}
