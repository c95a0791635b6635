package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/leafnet"
)

// PrintStats writes the 30-day disease statistics to w as a table or JSON.
func PrintStats(ctx context.Context, settings *conf.Settings, asJSON bool, w io.Writer) error {
	store, err := datastore.New(&settings.Database)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	labels, err := leafnet.LoadLabels(settings.Model.LabelsPath)
	if err != nil {
		return err
	}

	stats, err := datastore.DiseaseStatsSince(ctx, store, labels, time.Now())
	if err != nil {
		return err
	}
	return writeStats(w, stats, asJSON)
}

func writeStats(w io.Writer, stats *datastore.DiseaseStats, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s, %d analysed\n\n", stats.Period, stats.Total)
	fmt.Fprintln(tw, "CLASS\tCOUNT\tSHARE")
	for _, class := range stats.Classes() {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", class, stats.Counts[class], stats.Percentages[class])
	}
	return tw.Flush()
}
