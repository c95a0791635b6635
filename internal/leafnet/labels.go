package leafnet

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/leafnet/leafnet-go/internal/errors"
)

// HealthyLabel is the class that never raises an alert.
const HealthyLabel = "healthy_leaf"

// defaultLabels is the class order the bundled model was trained with.
var defaultLabels = []string{
	HealthyLabel,
	"early_blight_leaf",
	"late_blight_leaf",
	"tomato_yellow_leaf_curl_virus",
}

// DefaultLabels returns a copy of the built-in label set.
func DefaultLabels() []string {
	return slices.Clone(defaultLabels)
}

// classInfo is the layout of class_info.json written by the training job
type classInfo struct {
	Classes []string `json:"classes"`
}

// LoadLabels reads class names from a class_info.json file.
// An empty path returns the built-in labels.
func LoadLabels(path string) ([]string, error) {
	if path == "" {
		return DefaultLabels(), nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, errors.New(err).
			Component("leafnet").
			Category(errors.CategoryLabelLoad).
			FileContext(path, 0).
			Build()
	}

	var info classInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.New(fmt.Errorf("invalid class info file: %w", err)).
			Component("leafnet").
			Category(errors.CategoryLabelLoad).
			FileContext(path, int64(len(data))).
			Build()
	}

	if err := validateLabels(info.Classes); err != nil {
		return nil, errors.New(err).
			Component("leafnet").
			Category(errors.CategoryLabelLoad).
			FileContext(path, int64(len(data))).
			Build()
	}

	return info.Classes, nil
}

// validateLabels rejects empty, blank or duplicate class names
func validateLabels(labels []string) error {
	if len(labels) == 0 {
		return fmt.Errorf("label set is empty")
	}
	seen := make(map[string]struct{}, len(labels))
	for i, l := range labels {
		if strings.TrimSpace(l) == "" {
			return fmt.Errorf("label %d is blank", i)
		}
		if _, dup := seen[l]; dup {
			return fmt.Errorf("duplicate label %q", l)
		}
		seen[l] = struct{}{}
	}
	return nil
}
