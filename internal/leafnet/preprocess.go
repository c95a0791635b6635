package leafnet

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"os"
	"time"

	_ "golang.org/x/image/bmp" // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/observability/metrics"
)

const (
	// DefaultInputSize is the square edge the model was trained on.
	DefaultInputSize = 96
	// channels is RGB; alpha is dropped
	channels = 3
	// maxImagePixels guards against decompression bombs
	maxImagePixels = 64 * 1024 * 1024
)

// Tensor is a dense float32 tensor in NHWC layout.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Preprocessor turns encoded images into model input tensors of shape
// [1, size, size, 3] with values in [0, 1].
type Preprocessor struct {
	size    int
	metrics *metrics.LeafNetMetrics
}

// NewPreprocessor creates a Preprocessor for square inputs of size pixels.
// size <= 0 selects DefaultInputSize.
func NewPreprocessor(size int) *Preprocessor {
	if size <= 0 {
		size = DefaultInputSize
	}
	return &Preprocessor{size: size}
}

// SetMetrics attaches preprocessing metrics. nil disables them.
func (p *Preprocessor) SetMetrics(m *metrics.LeafNetMetrics) {
	p.metrics = m
}

// Size returns the square input edge in pixels.
func (p *Preprocessor) Size() int {
	return p.size
}

// Preprocess reads and converts the image file at path.
func (p *Preprocessor) Preprocess(path string) (*Tensor, error) {
	f, err := os.Open(path) //nolint:gosec // scratch files are created by the pipeline
	if err != nil {
		return nil, preprocessError(fmt.Errorf("cannot open image: %w", err), "open")
	}
	defer func() { _ = f.Close() }()

	return p.PreprocessReader(f)
}

// PreprocessReader decodes an image from r and converts it.
func (p *Preprocessor) PreprocessReader(r io.Reader) (*Tensor, error) {
	start := time.Now()
	t, err := p.preprocess(r)
	p.metrics.RecordPreprocess(time.Since(start).Seconds(), err)
	return t, err
}

func (p *Preprocessor) preprocess(r io.Reader) (*Tensor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, preprocessError(fmt.Errorf("cannot read image: %w", err), "read")
	}
	if len(data) == 0 {
		return nil, preprocessError(fmt.Errorf("image is empty"), "read")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, preprocessError(fmt.Errorf("unsupported or corrupt image: %w", err), "decode")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, preprocessError(fmt.Errorf("image has no pixels (%dx%d)", cfg.Width, cfg.Height), "decode")
	}
	if cfg.Width*cfg.Height > maxImagePixels {
		return nil, preprocessError(fmt.Errorf("image too large: %dx%d", cfg.Width, cfg.Height), "decode")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(fmt.Errorf("cannot decode %s image: %w", format, err)).
			Component("leafnet").
			Category(errors.CategoryPreprocess).
			Context("operation", "decode").
			Context("format", format).
			Build()
	}

	return p.FromImage(img), nil
}

// FromImage resizes img with bilinear interpolation and converts it to a
// normalised NHWC tensor. Alpha is discarded after un-premultiplying.
func (p *Preprocessor) FromImage(img image.Image) *Tensor {
	dst := image.NewNRGBA(image.Rect(0, 0, p.size, p.size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	out := make([]float32, p.size*p.size*channels)
	for y := range p.size {
		row := dst.Pix[y*dst.Stride:]
		for x := range p.size {
			src := row[x*4 : x*4+4]
			base := (y*p.size + x) * channels
			out[base+0] = float32(src[0]) / 255.0
			out[base+1] = float32(src[1]) / 255.0
			out[base+2] = float32(src[2]) / 255.0
		}
	}

	return &Tensor{
		Shape: []int{1, p.size, p.size, channels},
		Data:  out,
	}
}

func preprocessError(err error, operation string) error {
	return errors.New(err).
		Component("leafnet").
		Category(errors.CategoryPreprocess).
		Context("operation", operation).
		Build()
}
