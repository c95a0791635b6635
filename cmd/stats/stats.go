package stats

import (
	"github.com/spf13/cobra"

	"github.com/leafnet/leafnet-go/internal/analysis"
	"github.com/leafnet/leafnet-go/internal/conf"
)

// Command creates the stats command.
func Command(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print disease statistics for the last 30 days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.PrintStats(cmd.Context(), settings, asJSON, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	return cmd
}
