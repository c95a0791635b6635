package serve

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/leafnet/leafnet-go/internal/analysis"
	"github.com/leafnet/leafnet-go/internal/conf"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API, trigger sources and outbox",
		Long:  "Serve the HTTP API and process image records from the store poller and MQTT events until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.Serve(cmd.Context(), settings)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("listen", "", "HTTP listen address, e.g. :8080")
	cmd.Flags().Int("workers", 0, "Concurrent records per trigger source")
	cmd.Flags().Bool("poll", false, "Poll the store for pending records")

	bindings := map[string]string{
		"listen":  "webserver.listen",
		"workers": "pipeline.workers",
		"poll":    "pipeline.poll.enabled",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
