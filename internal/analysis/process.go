package analysis

import (
	"context"
	"fmt"
	"io"

	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/pipeline"
)

// ProcessRecord runs the pipeline once for the record with id.
// Side effects run inline; MQTT publishing is not used.
func ProcessRecord(ctx context.Context, settings *conf.Settings, id string, w io.Writer) (*pipeline.Report, error) {
	c, err := build(ctx, settings, buildOptions{})
	if err != nil {
		return nil, err
	}
	defer c.Close()

	report, err := c.Controller.HandleByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch report.Outcome {
	case pipeline.OutcomeCompleted:
		_, err = fmt.Fprintf(w, "%s: completed, %s\n", report.RecordID,
			pipeline.FormatSummary(report.Result.Class, report.Result.Confidence))
	case pipeline.OutcomeFailed:
		_, err = fmt.Fprintf(w, "%s: failed, %v\n", report.RecordID, report.Err)
	case pipeline.OutcomeAborted:
		_, err = fmt.Fprintf(w, "%s: aborted, left in processing (%v)\n", report.RecordID, report.Err)
	default:
		_, err = fmt.Fprintf(w, "%s: skipped, %s\n", report.RecordID, report.SkipReason)
	}
	return report, err
}
