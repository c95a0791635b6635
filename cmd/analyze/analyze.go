package analyze

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/leafnet/leafnet-go/internal/analysis"
	"github.com/leafnet/leafnet-go/internal/conf"
)

// Command creates the analyze command for classifying a single image file.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [image]",
		Short: "Classify a local leaf image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := analysis.FileAnalysis(cmd.Context(), settings, args[0], cmd.OutOrStdout())
			return err
		},
	}

	cmd.Flags().String("model", "", "Path to the .tflite model")
	if err := viper.BindPFlag("model.path", cmd.Flags().Lookup("model")); err != nil {
		panic(fmt.Sprintf("error binding flags: %v", err))
	}

	return cmd
}
