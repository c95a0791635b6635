package process

import (
	"github.com/spf13/cobra"

	"github.com/leafnet/leafnet-go/internal/analysis"
	"github.com/leafnet/leafnet-go/internal/conf"
)

// Command creates the process command, which runs the pipeline for one record.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "process [record-id]",
		Short: "Run the analysis pipeline for one image record",
		Long:  "Claim, download, classify and persist a single pending image record. Non-pending records are skipped.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := analysis.ProcessRecord(cmd.Context(), settings, args[0], cmd.OutOrStdout())
			return err
		},
	}
}
