package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leafnet/leafnet-go/cmd"
	"github.com/leafnet/leafnet-go/internal/buildinfo"
	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/logger"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   string
	buildDate string
)

func main() {
	os.Exit(run())
}

func run() int {
	build := buildinfo.NewContext(version, buildDate)
	settings := &conf.Settings{}

	var central *logger.CentralLogger
	initRuntime := func(s *conf.Settings) error {
		if s.Debug {
			s.Logging.DefaultLevel = string(logger.LogLevelDebug)
			if s.Logging.Console != nil {
				s.Logging.Console.Level = string(logger.LogLevelDebug)
			}
		}
		cl, err := logger.NewCentralLogger(&s.Logging)
		if err != nil {
			return fmt.Errorf("error initializing logging: %w", err)
		}
		logger.SetGlobal(cl)
		central = cl

		if s.Sentry.Enabled {
			if err := errors.InitSentry(s.Sentry.DSN, build.Release(), s.Sentry.Environment); err != nil {
				logger.Global().Module("main").Warn("telemetry disabled", logger.Error(err))
			}
		}
		logger.Global().Module("main").Info("LeafNet starting",
			logger.String("version", build.GetVersion()),
			logger.String("build_date", build.GetBuildDate()))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.RootCommand(settings, build, initRuntime)
	err := rootCmd.ExecuteContext(ctx)

	errors.FlushSentry(2 * time.Second)
	if central != nil {
		_ = central.Flush()
		_ = central.Close()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
