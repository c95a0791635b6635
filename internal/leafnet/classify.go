package leafnet

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/logger"
	"github.com/leafnet/leafnet-go/internal/observability/metrics"
)

// ClassProbability pairs a class label with the model's probability for it.
type ClassProbability struct {
	Class       string  `json:"class"`
	Probability float64 `json:"probability"`
}

// Result is the outcome of one classification.
// Probabilities always has one entry per label, in label order.
type Result struct {
	Class         string             `json:"class"`
	Confidence    float64            `json:"confidence"`
	Probabilities []ClassProbability `json:"probabilities"`
}

// ProbabilityMap returns the distribution keyed by class label.
func (r *Result) ProbabilityMap() map[string]float64 {
	m := make(map[string]float64, len(r.Probabilities))
	for _, p := range r.Probabilities {
		m[p.Class] = p.Probability
	}
	return m
}

// Classifier runs the cached model over preprocessed tensors.
type Classifier struct {
	cache   *ModelCache
	labels  []string
	metrics *metrics.LeafNetMetrics
}

// NewClassifier creates a Classifier over cache with the given label order.
func NewClassifier(cache *ModelCache, labels []string) (*Classifier, error) {
	if cache == nil {
		return nil, fmt.Errorf("model cache is nil")
	}
	if err := validateLabels(labels); err != nil {
		return nil, errors.New(err).
			Component("leafnet").
			Category(errors.CategoryLabelLoad).
			Build()
	}
	return &Classifier{cache: cache, labels: slices.Clone(labels)}, nil
}

// SetMetrics attaches inference metrics. nil disables them.
func (c *Classifier) SetMetrics(m *metrics.LeafNetMetrics) {
	c.metrics = m
}

// Labels returns a copy of the classifier's label order.
func (c *Classifier) Labels() []string {
	return slices.Clone(c.labels)
}

// Cache returns the model cache the classifier draws from.
func (c *Classifier) Cache() *ModelCache {
	return c.cache
}

// Classify runs a single forward pass and picks the most probable class.
// Ties go to the lowest label index. The tensor is not modified.
func (c *Classifier) Classify(ctx context.Context, t *Tensor) (*Result, error) {
	if t == nil || len(t.Data) == 0 {
		return nil, inferenceError(fmt.Errorf("empty input tensor"), len(c.labels), 0)
	}

	model, err := c.cache.Get(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	input := slices.Clone(t.Data)
	output, err := model.Predict(input)
	if err != nil {
		c.metrics.RecordInference("", 0, err)
		return nil, inferenceError(fmt.Errorf("inference failed: %w", err), len(c.labels), len(t.Data))
	}

	if len(output) != len(c.labels) {
		err := inferenceError(
			fmt.Errorf("output shape mismatch: model returned %d values for %d labels", len(output), len(c.labels)),
			len(c.labels), len(t.Data))
		c.metrics.RecordInference("", 0, err)
		return nil, err
	}

	best := 0
	probs := make([]ClassProbability, len(output))
	for i, p := range output {
		probs[i] = ClassProbability{Class: c.labels[i], Probability: float64(p)}
		if p > output[best] {
			best = i
		}
	}

	result := &Result{
		Class:         c.labels[best],
		Confidence:    float64(output[best]),
		Probabilities: probs,
	}

	elapsed := time.Since(start)
	c.metrics.RecordInference(result.Class, elapsed.Seconds(), nil)
	GetLogger().Debug("image classified",
		logger.String("class", result.Class),
		logger.Float64("confidence", result.Confidence),
		logger.Duration("inference_time", elapsed))

	return result, nil
}

func inferenceError(err error, labelCount, inputLen int) error {
	return errors.New(err).
		Component("leafnet").
		Category(errors.CategoryInference).
		Context("label_count", labelCount).
		Context("input_len", inputLen).
		Build()
}
