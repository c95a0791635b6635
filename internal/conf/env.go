// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envPrefix is prepended to every automatic environment binding
const envPrefix = "LEAFNET"

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the explicitly validated environment variables.
// Every other key is still reachable as LEAFNET_<SECTION>_<KEY> through AutomaticEnv.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"model.path", "LEAFNET_MODEL_PATH", validateEnvPath},
		{"model.labelspath", "LEAFNET_MODEL_LABELSPATH", validateEnvPath},
		{"model.threads", "LEAFNET_MODEL_THREADS", validateEnvThreads},
		{"model.usexnnpack", "LEAFNET_MODEL_USEXNNPACK", validateEnvBool},

		{"pipeline.alertthreshold", "LEAFNET_PIPELINE_ALERTTHRESHOLD", validateEnvThreshold},
		{"pipeline.workers", "LEAFNET_PIPELINE_WORKERS", validateEnvWorkers},
		{"pipeline.poll.interval", "LEAFNET_PIPELINE_POLL_INTERVAL", validateEnvDuration},

		{"storage.backend", "LEAFNET_STORAGE_BACKEND", validateEnvStorageBackend},
		{"database.type", "LEAFNET_DATABASE_TYPE", validateEnvDatabaseType},

		{"mqtt.enabled", "LEAFNET_MQTT_ENABLED", validateEnvBool},
		{"sentry.enabled", "LEAFNET_SENTRY_ENABLED", validateEnvBool},
	}
}

// bindEnvVars sets up environment variable bindings with validation
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

// validateEnvBool validates boolean environment variables
func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f, TRUE/FALSE, T/F", value)
	}
	return nil
}

func validateEnvThreshold(value string) error {
	threshold, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("invalid threshold: %w", err)
	}
	if threshold < 0.0 || threshold > 1.0 {
		return fmt.Errorf("threshold must be between 0.0 and 1.0, got %g", threshold)
	}
	return nil
}

func validateEnvThreads(value string) error {
	threads, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid threads: %w", err)
	}
	if threads < 0 {
		return fmt.Errorf("threads must be non-negative, got %d", threads)
	}
	return nil
}

func validateEnvWorkers(value string) error {
	workers, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid workers: %w", err)
	}
	if workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", workers)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func validateEnvStorageBackend(value string) error {
	return oneOf(value, StorageBackends)
}

func validateEnvDatabaseType(value string) error {
	return oneOf(value, DatabaseTypes)
}

func oneOf(value string, valid []string) error {
	if slices.Contains(valid, strings.ToLower(strings.TrimSpace(value))) {
		return nil
	}
	return fmt.Errorf("must be one of: %s", strings.Join(valid, ", "))
}

// validateEnvPath rejects relative paths containing traversal components
func validateEnvPath(value string) error {
	if value == "" {
		return nil
	}
	for part := range strings.SplitSeq(value, string(os.PathSeparator)) {
		if part == ".." {
			return fmt.Errorf("path traversal detected in path: %s", value)
		}
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return bindEnvVars()
}
