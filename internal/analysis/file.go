package analysis

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/leafnet"
)

// FileAnalysis classifies a local image and writes the distribution to w.
func FileAnalysis(ctx context.Context, settings *conf.Settings, path string, w io.Writer) (*leafnet.Result, error) {
	if err := validateImageFile(path); err != nil {
		return nil, err
	}

	set, err := initClassifier(settings, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = set.cache.Close() }()

	tensor, err := set.preprocessor.Preprocess(path)
	if err != nil {
		return nil, err
	}
	result, err := set.classifier.Classify(ctx, tensor)
	if err != nil {
		return nil, err
	}

	return result, writeResult(w, path, result)
}

func validateImageFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	if info.IsDir() {
		return errors.Newf("%s is a directory", path).
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// writeResult prints the top class followed by every class, most likely first.
func writeResult(w io.Writer, path string, result *leafnet.Result) error {
	probs := slices.Clone(result.Probabilities)
	slices.SortStableFunc(probs, func(a, b leafnet.ClassProbability) int {
		switch {
		case a.Probability > b.Probability:
			return -1
		case a.Probability < b.Probability:
			return 1
		default:
			return 0
		}
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Image:\t%s\n", path)
	fmt.Fprintf(tw, "Result:\t%s (%.2f%%)\n\n", result.Class, result.Confidence*100)
	fmt.Fprintln(tw, "CLASS\tPROBABILITY")
	for _, p := range probs {
		fmt.Fprintf(tw, "%s\t%.2f%%\n", p.Class, p.Probability*100)
	}
	return tw.Flush()
}
