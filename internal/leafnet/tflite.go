package leafnet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/logger"
)

// TFLiteModel is a Model backed by a TensorFlow Lite interpreter.
// The interpreter is not goroutine safe, so Predict is serialised.
type TFLiteModel struct {
	mu          sync.Mutex
	path        string
	data        []byte
	model       *tflite.Model
	interpreter *tflite.Interpreter
	inputLen    int
}

// NewTFLiteLoader returns a ModelLoader that builds a TFLiteModel from settings.
func NewTFLiteLoader(settings *conf.ModelSettings) ModelLoader {
	return func(ctx context.Context) (Model, error) {
		return LoadTFLiteModel(ctx, settings.Path, settings.Threads, settings.UseXNNPACK)
	}
}

// LoadTFLiteModel reads a .tflite file and prepares an interpreter for it.
// threads <= 0 selects the physical core count.
func LoadTFLiteModel(ctx context.Context, path string, threads int, useXNNPACK bool) (*TFLiteModel, error) {
	start := time.Now()
	log := GetLogger()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // model path comes from operator config
	if err != nil {
		return nil, errors.New(fmt.Errorf("cannot read model file: %w", err)).
			Component("leafnet").
			Category(errors.CategoryModelLoad).
			ModelContext(path, modelName(path)).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model")).
			Component("leafnet").
			Category(errors.CategoryModelLoad).
			ModelContext(path, modelName(path)).
			Context("model_size_kb", len(data)/1024).
			Timing("model-load", time.Since(start)).
			Build()
	}

	threads = determineThreadCount(threads)
	options := tflite.NewInterpreterOptions()

	if useXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // G115: bounded by CPU count
		if delegate == nil {
			log.Warn("failed to create XNNPACK delegate, falling back to default CPU")
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}

	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, errors.New(fmt.Errorf("cannot create interpreter")).
			Component("leafnet").
			Category(errors.CategoryModelLoad).
			ModelContext(path, modelName(path)).
			Context("use_xnnpack", useXNNPACK).
			Build()
	}

	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, errors.New(fmt.Errorf("tensor allocation failed: %v", status)).
			Component("leafnet").
			Category(errors.CategoryModelLoad).
			ModelContext(path, modelName(path)).
			Build()
	}

	input := interpreter.GetInputTensor(0)
	if input == nil {
		interpreter.Delete()
		model.Delete()
		return nil, errors.New(fmt.Errorf("model has no input tensor")).
			Component("leafnet").
			Category(errors.CategoryModelLoad).
			ModelContext(path, modelName(path)).
			Build()
	}

	m := &TFLiteModel{
		path:        path,
		data:        data,
		model:       model,
		interpreter: interpreter,
		inputLen:    len(input.Float32s()),
	}

	log.Info("leaf disease model initialized",
		logger.String("model", modelName(path)),
		logger.Int("threads", threads),
		logger.Bool("xnnpack", useXNNPACK),
		logger.Int("input_len", m.inputLen),
		logger.Duration("load_time", time.Since(start)))

	return m, nil
}

// Predict copies input into the interpreter, invokes it and returns a copy of output 0.
func (m *TFLiteModel) Predict(input []float32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interpreter == nil {
		return nil, fmt.Errorf("model is closed")
	}

	inputTensor := m.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	buf := inputTensor.Float32s()
	if len(buf) != len(input) {
		return nil, fmt.Errorf("input size mismatch: model expects %d values, got %d", len(buf), len(input))
	}
	copy(buf, input)

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	outputTensor := m.interpreter.GetOutputTensor(0)
	if outputTensor == nil {
		return nil, fmt.Errorf("cannot get output tensor")
	}
	out := outputTensor.Float32s()
	predictions := make([]float32, len(out))
	copy(predictions, out)

	return predictions, nil
}

// Close releases the interpreter and model. It is safe to call more than once.
func (m *TFLiteModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interpreter != nil {
		m.interpreter.Delete()
		m.interpreter = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
	m.data = nil
	return nil
}

// determineThreadCount picks the interpreter thread count.
// 0 means one thread per physical core, capped at the logical CPU count.
func determineThreadCount(configured int) int {
	systemCPUCount := runtime.NumCPU()

	if configured <= 0 {
		if physical := cpuid.CPU.PhysicalCores; physical > 0 {
			return min(physical, systemCPUCount)
		}
		return systemCPUCount
	}

	return min(configured, systemCPUCount)
}

func modelName(path string) string {
	return filepath.Base(path)
}
