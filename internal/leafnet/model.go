package leafnet

import "context"

// Model runs a single forward pass over an NHWC float32 input.
// Implementations must be safe for concurrent use.
type Model interface {
	// Predict returns the raw output distribution for one input tensor.
	// The returned slice is owned by the caller.
	Predict(input []float32) ([]float32, error)
	// Close releases the underlying runtime resources.
	Close() error
}

// ModelLoader creates a Model. It is called by ModelCache until it succeeds.
type ModelLoader func(ctx context.Context) (Model, error)
