package leafnet

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeModel returns a fixed distribution and records what it was given
type fakeModel struct {
	mu      sync.Mutex
	output  []float32
	err     error
	inputs  [][]float32
	closed  atomic.Bool
	mutator bool // scribble over the input to prove the caller's tensor is protected
}

func (m *fakeModel) Predict(input []float32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
	if m.mutator {
		for i := range input {
			input[i] = -1
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	out := make([]float32, len(m.output))
	copy(out, m.output)
	return out, nil
}

func (m *fakeModel) Close() error {
	m.closed.Store(true)
	return nil
}

// staticLoader returns m every time and counts calls
func staticLoader(m Model, calls *atomic.Int32) ModelLoader {
	return func(context.Context) (Model, error) {
		calls.Add(1)
		return m, nil
	}
}

// flakyLoader fails the first n calls
func flakyLoader(m Model, failures int, calls *atomic.Int32) ModelLoader {
	return func(context.Context) (Model, error) {
		n := calls.Add(1)
		if int(n) <= failures {
			return nil, fmt.Errorf("model file not found")
		}
		return m, nil
	}
}

// writePNG writes a w x h PNG filled with c and returns its path
func writePNG(t *testing.T, w, h int, c color.Color) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(t.TempDir(), "leaf.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func testTensor() *Tensor {
	p := NewPreprocessor(DefaultInputSize)
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	return p.FromImage(img)
}
