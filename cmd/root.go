package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/leafnet/leafnet-go/cmd/analyze"
	configcmd "github.com/leafnet/leafnet-go/cmd/config"
	"github.com/leafnet/leafnet-go/cmd/process"
	"github.com/leafnet/leafnet-go/cmd/serve"
	"github.com/leafnet/leafnet-go/cmd/stats"
	"github.com/leafnet/leafnet-go/internal/buildinfo"
	"github.com/leafnet/leafnet-go/internal/conf"
)

// RootCommand creates the root command. settings is filled from the config
// file, environment and flags before any subcommand runs; init is then
// called to set up logging and telemetry.
func RootCommand(settings *conf.Settings, build *buildinfo.Context, init func(*conf.Settings) error) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "leafnet",
		Short:         "LeafNet tomato leaf disease classifier",
		Version:       build.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := conf.Load(configFile)
			if err != nil {
				return err
			}
			*settings = *loaded
			if init != nil {
				return init(settings)
			}
			return nil
		},
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		analyze.Command(settings),
		process.Command(settings),
		stats.Command(settings),
		configcmd.Command(settings),
	)

	return rootCmd
}

func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
