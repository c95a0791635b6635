package api

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/leafnet"
	"github.com/leafnet/leafnet-go/internal/observability"
)

// stubModel returns a fixed distribution
type stubModel struct {
	output []float32
}

func (m *stubModel) Predict([]float32) ([]float32, error) {
	out := make([]float32, len(m.output))
	copy(out, m.output)
	return out, nil
}

func (m *stubModel) Close() error { return nil }

type testEnv struct {
	server *Server
	echo   *echo.Echo
	ds     *datastore.DataStore
	now    time.Time
}

// setupTestServer builds a server over a temp SQLite store and a stub model.
func setupTestServer(t *testing.T, output ...float32) *testEnv {
	t.Helper()

	ds, err := datastore.OpenSQLite(filepath.Join(t.TempDir(), "api.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })

	model := &stubModel{output: output}
	cache := leafnet.NewModelCache(func(context.Context) (leafnet.Model, error) { return model, nil })
	t.Cleanup(func() { _ = cache.Close() })
	classifier, err := leafnet.NewClassifier(cache, leafnet.DefaultLabels())
	require.NoError(t, err)

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	settings := &conf.Settings{}
	settings.WebServer.MaxUploadSize = 1 << 20
	settings.WebServer.StatsCacheTTL = time.Minute

	srv, err := New(settings,
		WithDataStore(ds),
		WithClassifier(leafnet.NewPreprocessor(8), classifier),
		WithMetrics(m))
	require.NoError(t, err)

	env := &testEnv{server: srv, echo: srv.Echo(), ds: ds, now: time.Now()}
	srv.Controller().now = func() time.Time { return env.now }
	return env
}

// pngBytes encodes a small solid-colour PNG.
func pngBytes(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 12, 12))
	for y := range 12 {
		for x := range 12 {
			img.Set(x, y, color.RGBA{R: 120, G: 200, B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
